package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/exchangeloader/internal/connector"
	"github.com/pkg/errors"
)

// Source returns the current exchange list.
type Source interface {
	Fetch(ctx context.Context) (List, error)
}

// RESTSource fetches the exchange list from a REST endpoint.
type RESTSource struct {
	rest *connector.REST
	url  string
}

// NewRESTSource creates a Source reading the list from url.
func NewRESTSource(rest *connector.REST, url string) *RESTSource {
	return &RESTSource{rest: rest, url: url}
}

// Fetch issues one GET request and decodes the body.
func (s *RESTSource) Fetch(ctx context.Context) (List, error) {
	req, err := s.rest.Request(ctx, http.MethodGet, s.url)
	if err != nil {
		return nil, transportFailure(err)
	}

	resp, err := s.rest.Do(req)
	if err != nil {
		return nil, transportFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportFailure(errors.Wrap(err, "reading body"))
	}
	return decodeList(body)
}

var jsonNull = []byte("null")

// decodeList decodes a JSON array of strings. Neither the body nor any
// element may be null.
func decodeList(body []byte) (List, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, responseFailure(errors.New("body is empty"))
	}
	if bytes.Equal(trimmed, jsonNull) {
		return nil, responseFailure(errors.New("body is null"))
	}
	var names []*string
	if err := jsoniter.Unmarshal(body, &names); err != nil {
		return nil, responseFailure(err)
	}
	list := make(List, len(names))
	for i, name := range names {
		if name == nil {
			return nil, responseFailure(errors.Errorf("element %d is null", i))
		}
		list[i] = *name
	}
	return list, nil
}
