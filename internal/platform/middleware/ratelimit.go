// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/taibuivan/yomira-cms/internal/platform/apperr"
	"github.com/taibuivan/yomira-cms/internal/platform/constants"
	"github.com/taibuivan/yomira-cms/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-cms/internal/platform/metrics"
	"github.com/taibuivan/yomira-cms/internal/platform/ratelimit"
	"github.com/taibuivan/yomira-cms/internal/platform/respond"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

// APIKeyResolver reports whether a hashed API key is registered and live.
type APIKeyResolver interface {
	ResolveAPIKey(ctx context.Context, keyHash string) (bool, error)
}

// RateLimit gates every request through the fixed-window limiter.
//
// # Bucket Resolution
//  1. X-API-Key known to keys: apiKey bucket, keyed by the key's hash.
//  2. Valid bearer token: authenticated bucket, keyed by subject ID.
//  3. Otherwise: anonymous bucket, keyed by client IP.
//
// Unknown keys fall through to steps 2 and 3. Cache failures produce a 500;
// the gate never fails open.
func RateLimit(limiter *ratelimit.Limiter, authn Authenticator, keys APIKeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			bucket, identifier := resolveBucket(request, authn, keys)

			decision, err := limiter.CheckAndConsume(request.Context(), identifier, bucket)
			if err != nil {
				metrics.RateLimitDecisions.WithLabelValues(string(bucket), metrics.OutcomeError).Inc()
				respond.Error(writer, request, apperr.Internal(err))
				return
			}

			header := writer.Header()
			header.Set(constants.HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			header.Set(constants.HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
			header.Set(constants.HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				metrics.RateLimitDecisions.WithLabelValues(string(bucket), metrics.OutcomeRejected).Inc()
				retryAfter := int(time.Until(decision.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				header.Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))

				ctxutil.GetLogger(request.Context()).DebugContext(request.Context(), "rate_limit_rejected",
					slog.String("bucket", string(bucket)),
				)
				respond.Error(writer, request, apperr.RateLimited(decision.Remaining, decision.ResetAt))
				return
			}

			metrics.RateLimitDecisions.WithLabelValues(string(bucket), metrics.OutcomeAllowed).Inc()
			next.ServeHTTP(writer, request)
		})
	}
}

func resolveBucket(request *http.Request, authn Authenticator, keys APIKeyResolver) (ratelimit.Bucket, string) {
	if apiKey := request.Header.Get(constants.HeaderAPIKey); apiKey != "" && keys != nil {
		keyHash := sec.HashToken(apiKey)
		known, err := keys.ResolveAPIKey(request.Context(), keyHash)
		if err != nil {
			ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "api_key_lookup_failed",
				slog.Any("error", err),
			)
		}
		if known {
			return ratelimit.BucketAPIKey, keyHash
		}
	}

	if authorization := request.Header.Get(constants.HeaderAuthorization); authorization != "" && authn != nil {
		if identity, err := authn.AuthenticateRequest(request.Context(), authorization); err == nil {
			return ratelimit.BucketAuthenticated, identity.SubjectID
		}
	}

	return ratelimit.BucketAnonymous, RealIP(request)
}
