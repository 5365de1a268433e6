// Package common holds helpers shared by the v1 handlers
package common

import (
	"context"
	"errors"

	"go_certhub/internal/account"
	"go_certhub/internal/acme"
	"go_certhub/internal/cert"
	"go_certhub/internal/dns"
	"go_certhub/internal/httpx"
	"go_certhub/internal/orchestrator"
	"go_certhub/internal/session"

	"github.com/gin-gonic/gin"
)

// Fail maps a service error onto the response envelope
func Fail(c *gin.Context, err error) {
	httpx.FailErr(c, AppError(err))
}

// AppError converts service sentinels, CA and DNS vendor errors to an AppError
func AppError(err error) *httpx.AppError {
	var appErr *httpx.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, account.ErrInvalidParam),
		errors.Is(err, dns.ErrInvalidParam),
		errors.Is(err, orchestrator.ErrInvalidParam):
		return httpx.ErrParamIllegal(err.Error())

	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, cert.ErrNotFound),
		errors.Is(err, dns.ErrProviderNotFound),
		errors.Is(err, session.ErrNotFound):
		return httpx.ErrNotFound(err.Error())

	case errors.Is(err, account.ErrStateConflict),
		errors.Is(err, cert.ErrStateConflict),
		errors.Is(err, orchestrator.ErrStateConflict),
		errors.Is(err, session.ErrExpired):
		return httpx.ErrStateConflict(err.Error())

	case acme.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return httpx.ErrTimeout(err.Error(), err)
	}

	if kind := dns.KindOf(err); kind != "" {
		problem := &httpx.DNSProblem{Kind: string(kind)}
		var pe *dns.ProviderError
		if errors.As(err, &pe) {
			problem.Provider = pe.Provider
			problem.Code = pe.Code
		}
		return httpx.ErrDNSProviderError(err.Error(), problem, err)
	}

	if acme.KindOf(err) != "" {
		var problem *httpx.CAProblem
		if p := acme.ProblemOf(err); p != nil {
			problem = &httpx.CAProblem{Type: p.Type, Detail: p.Detail, Status: p.HTTPStatus}
		}
		return httpx.ErrCAError(err.Error(), problem, err)
	}

	return httpx.ErrInternalError("", err)
}
