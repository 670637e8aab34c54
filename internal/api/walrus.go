package api

import (
	"context"
	"errors"

	"neural-garden/internal/constants"
	"neural-garden/internal/domain"

	"github.com/valyala/fasthttp"
)

type WalrusPublisher struct {
	publisherURL string
	client       *fasthttp.Client
}

func NewWalrusPublisher(publisherURL string) *WalrusPublisher {
	return &WalrusPublisher{
		publisherURL: publisherURL,
		client:       newHTTPClient(constants.PublishTimeout),
	}
}

type walrusStoreRequest struct {
	Category string `json:"category"`
	Data     any    `json:"data"`
}

type walrusStoreResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
}

// Publish stores a JSON document and returns its blob id.
func (p *WalrusPublisher) Publish(ctx context.Context, category string, data any) (string, error) {
	resp, err := doRequest[walrusStoreResponse](ctx, p.client, "blob publisher", request{
		method: fasthttp.MethodPut,
		url:    p.publisherURL + "/v1/store",
		body:   walrusStoreRequest{Category: category, Data: data},
	})
	if err != nil {
		return "", err
	}

	switch {
	case resp.NewlyCreated != nil && resp.NewlyCreated.BlobObject.BlobID != "":
		return resp.NewlyCreated.BlobObject.BlobID, nil
	case resp.AlreadyCertified != nil && resp.AlreadyCertified.BlobID != "":
		return resp.AlreadyCertified.BlobID, nil
	}
	return "", domain.ExternalService("blob publisher returned no blob id", false, errors.New("missing blobId"))
}
