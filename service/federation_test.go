package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabeth/inhouseaws/models"
)

func serviceAccountToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return token
}

func kubernetesToken(t *testing.T) string {
	return serviceAccountToken(t, jwt.MapClaims{
		"iss": "https://kubernetes.default.svc.cluster.local",
		"sub": "system:serviceaccount:billing:worker",
		"aud": []string{"sts.amazonaws.com"},
		"exp": time.Now().Add(time.Hour).Unix(),
		"kubernetes.io": map[string]any{
			"namespace":      "billing",
			"pod":            map[string]any{"name": "worker-7d9f", "uid": "pod-uid-1"},
			"serviceaccount": map[string]any{"name": "worker", "uid": "sa-uid-1"},
		},
	})
}

func TestAssumeRoleWithWebIdentity(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestServices(t, Options{})
	clock.Advance(1500 * time.Millisecond)

	resp, err := svc.Federation.AssumeRoleWithWebIdentity(ctx, testCaller, &models.AssumeRoleWithWebIdentityRequest{
		RoleArn:          "arn:aws:iam::111122223333:role/worker",
		RoleSessionName:  "nightly",
		WebIdentityToken: kubernetesToken(t),
	})
	require.NoError(t, err)

	creds := resp.Credentials
	assert.True(t, strings.HasPrefix(creds.AccessKeyId, "ASIA"))
	assert.Len(t, creds.AccessKeyId, 20)
	assert.Len(t, creds.SecretAccessKey, 40)
	assert.NotEmpty(t, creds.SessionToken)
	assert.Equal(t, clock.Now().UTC().Truncate(time.Second).Add(15*time.Minute), creds.Expiration)

	assert.Equal(t, "arn:aws:sts::111122223333:assumed-role/billing/worker", resp.AssumedRoleUser.Arn)
	assert.Equal(t, "billing:sa-uid-1", resp.AssumedRoleUser.AssumedRoleId)
	assert.Equal(t, "system:serviceaccount:billing:worker", resp.SubjectFromWebIdentityToken)
	assert.Equal(t, "k8s/billing/worker", resp.SourceIdentity)
	assert.Equal(t, "https://kubernetes.default.svc.cluster.local", resp.Provider)
	assert.Equal(t, "sts.amazonaws.com", resp.Audience)

	session, err := svc.Federation.c.Sessions.Get(ctx, creds.AccessKeyId)
	require.NoError(t, err)
	assert.Equal(t, "nightly", session.RoleSessionName)
	assert.Equal(t, "worker-7d9f", session.PodName)

	t.Run("caller identity reflects the session", func(t *testing.T) {
		caller := Caller{AccountID: testCaller.AccountID, Region: testCaller.Region, AccessKeyID: creds.AccessKeyId}
		id, err := svc.Federation.GetCallerIdentity(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, "111122223333", id.Account)
		assert.Equal(t, "arn:aws:sts::111122223333:assumed-role/billing/worker", id.Arn)
		assert.Equal(t, "billing:sa-uid-1:nightly", id.UserId)

		clock.Advance(15 * time.Minute)
		id, err = svc.Federation.GetCallerIdentity(ctx, caller)
		require.NoError(t, err)
		assert.Equal(t, testCaller.AccountID, id.Account)
		assert.Equal(t, "arn:aws:iam::123456123456:root", id.Arn)
	})
}

func TestAssumeRoleWithWebIdentityDefaults(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	token := serviceAccountToken(t, jwt.MapClaims{
		"sub": "system:serviceaccount:ops:agent",
		"kubernetes.io": map[string]any{
			"namespace":      "ops",
			"serviceaccount": map[string]any{"name": "agent", "uid": "u"},
		},
	})
	resp, err := svc.Federation.AssumeRoleWithWebIdentity(context.Background(), testCaller, &models.AssumeRoleWithWebIdentityRequest{
		RoleArn:          "arn:aws:iam:::role/agent",
		WebIdentityToken: token,
	})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sts::123456123456:assumed-role/ops/agent", resp.AssumedRoleUser.Arn)
	assert.Equal(t, defaultProvider, resp.Provider)

	session, err := svc.Federation.c.Sessions.Get(context.Background(), resp.Credentials.AccessKeyId)
	require.NoError(t, err)
	assert.Equal(t, "none", session.RoleSessionName)
}

func TestAssumeRoleWithWebIdentityErrors(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	notKubernetes := serviceAccountToken(t, jwt.MapClaims{"sub": "someone", "iss": "https://accounts.example.com"})

	tests := []struct {
		name string
		req  models.AssumeRoleWithWebIdentityRequest
		kind error
		code string
		msg  string
	}{
		{"missing role", models.AssumeRoleWithWebIdentityRequest{WebIdentityToken: notKubernetes}, ErrInvalidArgument, CodeMissingParameter, ""},
		{"missing token", models.AssumeRoleWithWebIdentityRequest{RoleArn: "arn:aws:iam::1:role/x"}, ErrInvalidArgument, CodeMissingParameter, ""},
		{"malformed role", models.AssumeRoleWithWebIdentityRequest{RoleArn: "worker", WebIdentityToken: notKubernetes}, ErrInvalidArgument, CodeInvalidParameterValue, ""},
		{"not a jwt", models.AssumeRoleWithWebIdentityRequest{RoleArn: "arn:aws:iam::1:role/x", WebIdentityToken: "abc"}, ErrInvalidIdentityToken, CodeInvalidIdentityToken, ""},
		{"not kubernetes", models.AssumeRoleWithWebIdentityRequest{RoleArn: "arn:aws:iam::1:role/x", WebIdentityToken: notKubernetes}, ErrInvalidIdentityToken, CodeInvalidIdentityToken, "This is not a Kubernetes token!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Federation.AssumeRoleWithWebIdentity(context.Background(), testCaller, &tt.req)
			requireCode(t, err, tt.kind, tt.code)
			if tt.msg != "" {
				e, _ := AsError(err)
				assert.Equal(t, tt.msg, e.Message)
			}
		})
	}
}

func TestGetCallerIdentityStatic(t *testing.T) {
	svc, _ := newTestServices(t, Options{})

	id, err := svc.Federation.GetCallerIdentity(context.Background(), Caller{AccountID: "123456123456", AccessKeyID: "AKIDSTATIC"})
	require.NoError(t, err)
	assert.Equal(t, &models.GetCallerIdentityResponse{UserId: "AKIDSTATIC", Account: "123456123456", Arn: "arn:aws:iam::123456123456:root"}, id)

	id, err = svc.Federation.GetCallerIdentity(context.Background(), Caller{AccountID: "123456123456"})
	require.NoError(t, err)
	assert.Equal(t, "123456123456", id.UserId)
}
