// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
	"github.com/taibuivan/yomira-cms/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
	"github.com/taibuivan/yomira-cms/internal/platform/validate"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - writer: http.ResponseWriter (used to enforce the body size cap)
  - request: *http.Request
  - target: any (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(writer http.ResponseWriter, request *http.Request, target any) error {
	body := http.MaxBytesReader(writer, request.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
DecodeOptionalJSON behaves like [DecodeJSON] but accepts a missing or empty
body, leaving target untouched. Chunked bodies of unknown length are read.
*/
func DecodeOptionalJSON(writer http.ResponseWriter, request *http.Request, target any) error {
	if request.Body == nil || request.Body == http.NoBody {
		return nil
	}

	body := http.MaxBytesReader(writer, request.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
RequiredIdentity ensures the request is authenticated and returns the caller.

Returns:
  - *sec.Identity: The authenticated caller
  - error: apperr.Unauthenticated if the request is not authenticated
*/
func RequiredIdentity(request *http.Request) (*sec.Identity, error) {
	identity := ctxutil.GetIdentity(request.Context())
	if identity == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	return identity, nil
}
