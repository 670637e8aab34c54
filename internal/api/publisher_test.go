package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"neural-garden/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalrusPublishNewlyCreated(t *testing.T) {
	var got walrusStoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/store", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"blob-123"}}}`))
	}))
	defer srv.Close()

	id, err := NewWalrusPublisher(srv.URL).Publish(context.Background(), "tech", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "blob-123", id)
	assert.Equal(t, "tech", got.Category)
}

func TestWalrusPublishAlreadyCertified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alreadyCertified":{"blobId":"blob-old"}}`))
	}))
	defer srv.Close()

	id, err := NewWalrusPublisher(srv.URL).Publish(context.Background(), "health", nil)
	require.NoError(t, err)
	assert.Equal(t, "blob-old", id)
}

func TestWalrusPublishMissingBlobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewWalrusPublisher(srv.URL).Publish(context.Background(), "health", nil)
	assert.True(t, errors.Is(err, domain.ErrExternalService))
}

func TestS3PublishUsesContentAddressedKey(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		_, _ = io.Copy(io.Discard, r.Body)
		paths = append(paths, r.URL.Path)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	pub := NewS3Publisher(client, "transcripts-bucket")

	key1, err := pub.Publish(context.Background(), "science", map[string]string{"q": "why"})
	require.NoError(t, err)
	key2, err := pub.Publish(context.Background(), "science", map[string]string{"q": "why"})
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.True(t, strings.HasPrefix(key1, "transcripts/science/"))
	require.Len(t, paths, 2)
	assert.Equal(t, "/transcripts-bucket/"+key1, paths[0])
}
