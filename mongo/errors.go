package mongo

import (
	"context"
	"errors"

	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// Server error codes the driver does not export.
const (
	codeNamespaceNotFound         = 26
	codeNamespaceExists           = 48
	codeIndexOptionsConflict      = 85
	codeIndexKeySpecsConflict     = 86
	codeDocumentValidationFailure = 121
)

// mapError classifies MongoDB errors with the persistence sentinels, keeping the
// server message.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if mongodriver.IsDuplicateKeyError(err) {
		return persistence.WrapDriverError(persistence.ErrDuplicateKey, err)
	}

	var serverErr mongodriver.ServerError
	if errors.As(err, &serverErr) {
		switch {
		case serverErr.HasErrorCode(codeNamespaceExists):
			return persistence.WrapDriverError(persistence.ErrCollectionExists, err)
		case serverErr.HasErrorCode(codeNamespaceNotFound):
			return persistence.WrapDriverError(persistence.ErrCollectionNotFound, err)
		case serverErr.HasErrorCode(codeIndexOptionsConflict), serverErr.HasErrorCode(codeIndexKeySpecsConflict):
			return persistence.WrapDriverError(persistence.ErrIndexExists, err)
		case serverErr.HasErrorCode(codeDocumentValidationFailure):
			return persistence.WrapDriverError(persistence.ErrValidationFailed, err)
		}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if mongodriver.IsNetworkError(err) || mongodriver.IsTimeout(err) || errors.Is(err, mongodriver.ErrClientDisconnected) {
		return persistence.WrapDriverError(persistence.ErrUnavailable, err)
	}
	return err
}
