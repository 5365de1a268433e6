package dns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"auth failure", errors.New("[TencentCloudSDKError] Code=AuthFailure.SignatureFailure"), KindAuth},
		{"aliyun bad key", errors.New("SDK.ServerError ErrorCode: InvalidAccessKeyId.NotFound"), KindAuth},
		{"http 403", errors.New("godaddy: unexpected status code: [status code: 403]"), KindAuth},
		{"throttled", errors.New("Throttling.User: Request was denied due to user flow control"), KindRateLimit},
		{"429", errors.New("status code 429 too many requests"), KindRateLimit},
		{"record missing", errors.New("record not found"), KindNotFound},
		{"net timeout", &net.DNSError{Err: "i/o timeout", IsTimeout: true}, KindTransient},
		{"server error", errors.New("service unavailable"), KindTransient},
		{"other", errors.New("zone example.com is not managed"), KindRejected},
		{"huawei iam", errors.New(`{"error_code":"APIGW.0301","error_msg":"Incorrect IAM authentication information"}`), KindAuth},
		{"godaddy auth", errors.New(`godaddy: {"code":"UNABLE_TO_AUTHENTICATE","message":"Unauthorized : Could not authenticate API key/secret"}`), KindAuth},
		{"tencent throttled", errors.New("[TencentCloudSDKError] Code=RequestLimitExceeded, Message=too many calls"), KindRateLimit},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("test", tt.err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_IgnoresIncidentalText(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"digits in request id", "request 4017a401-503b failed: record value is too long"},
		{"credential field named", "tencentcloud: SecretId must not contain whitespace"},
		{"signature in prose", "record value has an invalid signature length"},
		{"eof inside a word", "geofeed records are not supported"},
		{"quota wording", "quota of records per zone reached"},
		{"unknown vendor code", "SDK.ServerError ErrorCode: InvalidRR.Format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, KindRejected, KindOf(Classify("test", errors.New(tt.msg))))
		})
	}
}

func TestClassify_KeepsVendorCode(t *testing.T) {
	err := Classify("aliyun", errors.New("SDK.ServerError ErrorCode: Throttling.User Message: flow control"))
	var pe *ProviderError
	if assert.ErrorAs(t, err, &pe) {
		assert.Equal(t, KindRateLimit, pe.Kind)
		assert.Equal(t, "Throttling.User", pe.Code)
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.NoError(t, Classify("test", nil))

	already := NewError("cloudflare", KindAuth, "9109", errors.New("invalid token"))
	assert.Same(t, already, Classify("test", already))

	assert.ErrorIs(t, Classify("test", context.Canceled), context.Canceled)
	assert.Equal(t, ErrorKind(""), KindOf(Classify("test", context.DeadlineExceeded)))
}

func TestProviderError_Wrapped(t *testing.T) {
	err := fmt.Errorf("create record: %w", NewError("route53", KindRateLimit, "Throttling", errors.New("slow down")))
	assert.Equal(t, KindRateLimit, KindOf(err))
	assert.True(t, Retryable(err))
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "code=Throttling")
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, KindAuth, ClassifyStatus(401))
	assert.Equal(t, KindAuth, ClassifyStatus(403))
	assert.Equal(t, KindNotFound, ClassifyStatus(404))
	assert.Equal(t, KindRateLimit, ClassifyStatus(429))
	assert.Equal(t, KindTransient, ClassifyStatus(503))
	assert.Equal(t, KindRejected, ClassifyStatus(400))
}

func TestCredential_StringRedacts(t *testing.T) {
	c := Credential{ID: 1, Type: TypeCloudflare, SecretID: "cf-api-token", SecretKey: "zone-123"}
	assert.NotContains(t, c.String(), "cf-api-token")
	assert.NotContains(t, c.String(), "zone-123")
	assert.Contains(t, c.String(), "****oken")

	c = Credential{ID: 2, Type: TypeAliyun, SecretID: "LTAI", SecretKey: "ali-secret"}
	assert.Contains(t, fmt.Sprintf("%v", c), "LTAI")
	assert.NotContains(t, fmt.Sprintf("%v", c), "ali-secret")
}

func TestVendors(t *testing.T) {
	assert.Len(t, Vendors(), 7)
	for _, v := range Vendors() {
		assert.True(t, IsValidType(v.Type), v.Type)
	}
	assert.False(t, IsValidType("dnspod"))
}
