package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/exchangeloader/internal/config"
)

// S3 is for connecting and inserting data to S3.
type S3 struct {
	Client *awss3.Client
	Cfg    *config.S3
}

var _s3 *S3

// InitS3 initializes S3 connection with configured values.
func InitS3(cfg *config.S3) (*S3, error) {
	if _s3 == nil {
		httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.MaxIdleConns = cfg.MaxIdleConns
			tr.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
		}).WithTimeout(time.Duration(cfg.ReqTimeoutSec) * time.Second)
		awsConfig, err := awscfg.LoadDefaultConfig(context.TODO(),
			awscfg.WithRegion(cfg.AWSRegion),
			awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
			awscfg.WithHTTPClient(httpClient))
		if err != nil {
			return nil, err
		}
		_s3 = &S3{
			Client: awss3.NewFromConfig(awsConfig),
			Cfg:    cfg,
		}
		register(config.S3STORAGE, _s3)
	}
	return _s3, nil
}

// s3ObjectName returns the object key of a snapshot.
// Optional single digit prefix spreads the keys over partitions.
func s3ObjectName(s Snapshot, usePrefix bool) (string, error) {
	var fileName strings.Builder
	if usePrefix {
		nBig, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		fileName.WriteString(strconv.Itoa(int(nBig.Int64())))
		fileName.WriteString("/")
	}
	fileName.WriteString("options/")
	fileName.WriteString(s.Widget)
	fileName.WriteString(strconv.FormatInt(s.Timestamp.UTC().UnixNano(), 10))
	fileName.WriteString(".json")
	return fileName.String(), nil
}

// CommitSnapshot puts the rebuilt option list to s3 as a JSON object.
func (s *S3) CommitSnapshot(appCtx context.Context, snap Snapshot) error {
	s3ObjName, err := s3ObjectName(snap, s.Cfg.UsePrefixForObjName)
	if err != nil {
		return err
	}
	s3Data, err := jsoniter.Marshal(snap)
	if err != nil {
		return err
	}
	input := &awss3.PutObjectInput{
		Bucket: &s.Cfg.Bucket,
		Key:    &s3ObjName,
		Body:   bytes.NewReader(s3Data),
	}
	_, err = s.Client.PutObject(appCtx, input)
	return err
}
