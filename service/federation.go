package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/tabeth/inhouseaws/metrics"
	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/store"
)

const (
	defaultSessionName = "none"
	defaultProvider    = "www.amazon.com"
	accessKeyPrefix    = "ASIA"
)

// kubernetesClaims are the claims of a projected service-account token.
type kubernetesClaims struct {
	jwt.RegisteredClaims
	Kubernetes *struct {
		Namespace string `json:"namespace"`
		Pod       *struct {
			Name string `json:"name"`
			UID  string `json:"uid"`
		} `json:"pod,omitempty"`
		ServiceAccount *struct {
			Name string `json:"name"`
			UID  string `json:"uid"`
		} `json:"serviceaccount"`
	} `json:"kubernetes.io,omitempty"`
}

// Federation exchanges workload identity tokens for temporary credentials.
type Federation struct {
	c       *Collections
	clock   clockwork.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
	parser  *jwt.Parser
}

// NewFederation returns a Federation storing sessions in c.
func NewFederation(c *Collections, opts Options) *Federation {
	opts = opts.withDefaults()
	return &Federation{
		c:       c,
		clock:   opts.Clock,
		log:     opts.Logger,
		metrics: opts.Metrics,
		parser:  jwt.NewParser(),
	}
}

// AssumeRoleWithWebIdentity issues 15-minute credentials for a Kubernetes
// service-account token.
//
// The token signature, issuer and audience are not verified: the token is
// trusted to have been checked by whatever admitted the workload. Only its
// claims are read.
func (f *Federation) AssumeRoleWithWebIdentity(ctx context.Context, caller Caller, req *models.AssumeRoleWithWebIdentityRequest) (*models.AssumeRoleWithWebIdentityResponse, error) {
	if req.RoleArn == "" {
		return nil, errMissingParameter("RoleArn")
	}
	if req.WebIdentityToken == "" {
		return nil, errMissingParameter("WebIdentityToken")
	}
	role, err := arn.Parse(req.RoleArn)
	if err != nil {
		return nil, errInvalidParameter("%s is not a valid role ARN.", req.RoleArn)
	}

	claims := &kubernetesClaims{}
	if _, _, err := f.parser.ParseUnverified(req.WebIdentityToken, claims); err != nil {
		return nil, errInvalidIdentityToken("The web identity token could not be decoded: %v", err)
	}
	k := claims.Kubernetes
	if k == nil || k.Namespace == "" || k.ServiceAccount == nil || k.ServiceAccount.Name == "" {
		return nil, errInvalidIdentityToken("This is not a Kubernetes token!")
	}

	accountID := role.AccountID
	if accountID == "" {
		accountID = caller.AccountID
	}
	sessionName := req.RoleSessionName
	if sessionName == "" {
		sessionName = defaultSessionName
	}
	provider := claims.Issuer
	if provider == "" {
		provider = defaultProvider
	}

	now := f.clock.Now().UTC().Truncate(time.Second)
	session := &models.Session{
		AccountID:          accountID,
		RoleArn:            req.RoleArn,
		RoleSessionName:    sessionName,
		AssumedRoleArn:     fmt.Sprintf("arn:aws:sts::%s:assumed-role/%s/%s", accountID, k.Namespace, k.ServiceAccount.Name),
		AssumedRoleID:      k.Namespace + ":" + k.ServiceAccount.UID,
		SourceIdentity:     fmt.Sprintf("k8s/%s/%s", k.Namespace, k.ServiceAccount.Name),
		Provider:           provider,
		Subject:            claims.Subject,
		Audience:           strings.Join(claims.Audience, ","),
		Namespace:          k.Namespace,
		ServiceAccountName: k.ServiceAccount.Name,
		ServiceAccountUID:  k.ServiceAccount.UID,
		CreatedAt:          now,
		ExpiresAt:          now.Add(SessionDuration),
	}
	if k.Pod != nil {
		session.PodName = k.Pod.Name
		session.PodUID = k.Pod.UID
	}
	if err := f.insertSession(ctx, session); err != nil {
		return nil, err
	}

	f.metrics.SessionIssued()
	f.log.Info("session issued",
		slog.String("namespace", k.Namespace),
		slog.String("serviceAccount", k.ServiceAccount.Name),
		slog.String("pod", session.PodName),
		slog.String("roleArn", req.RoleArn))

	return &models.AssumeRoleWithWebIdentityResponse{
		Credentials: models.Credentials{
			AccessKeyId:     session.AccessKeyID,
			SecretAccessKey: session.SecretAccessKey,
			SessionToken:    session.SessionToken,
			Expiration:      session.ExpiresAt,
		},
		SubjectFromWebIdentityToken: session.Subject,
		AssumedRoleUser: models.AssumedRoleUser{
			AssumedRoleId: session.AssumedRoleID,
			Arn:           session.AssumedRoleArn,
		},
		Provider:       session.Provider,
		Audience:       session.Audience,
		SourceIdentity: session.SourceIdentity,
	}, nil
}

// insertSession assigns fresh credentials and stores the session, drawing
// new credentials in the unlikely case of an access key collision.
func (f *Federation) insertSession(ctx context.Context, s *models.Session) error {
	for attempt := 0; attempt < 3; attempt++ {
		creds, err := newCredentials()
		if err != nil {
			return err
		}
		s.AccessKeyID, s.SecretAccessKey, s.SessionToken = creds[0], creds[1], creds[2]
		err = f.c.Sessions.Insert(ctx, s)
		if !errors.Is(err, store.ErrDuplicateKey) {
			return err
		}
	}
	return errors.New("could not allocate a unique access key id")
}

// GetCallerIdentity describes the caller. Requests signed with an unexpired
// federated access key report the assumed role; anything else reports the
// account root.
func (f *Federation) GetCallerIdentity(ctx context.Context, caller Caller) (*models.GetCallerIdentityResponse, error) {
	if caller.AccessKeyID != "" {
		s, err := f.c.Sessions.Get(ctx, caller.AccessKeyID)
		switch {
		case err == nil && s.Valid(f.clock.Now()):
			return &models.GetCallerIdentityResponse{
				UserId:  s.AssumedRoleID + ":" + s.RoleSessionName,
				Account: s.AccountID,
				Arn:     s.AssumedRoleArn,
			}, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	userID := caller.AccessKeyID
	if userID == "" {
		userID = caller.AccountID
	}
	return &models.GetCallerIdentityResponse{
		UserId:  userID,
		Account: caller.AccountID,
		Arn:     arn.ARN{Partition: "aws", Service: "iam", AccountID: caller.AccountID, Resource: "root"}.String(),
	}, nil
}

// newCredentials returns an access key id, a secret access key and a session token.
func newCredentials() ([3]string, error) {
	var out [3]string
	buf := make([]byte, 10+30+96)
	if _, err := rand.Read(buf); err != nil {
		return out, fmt.Errorf("generate credentials: %w", err)
	}
	out[0] = accessKeyPrefix + base32.StdEncoding.EncodeToString(buf[:10])
	out[1] = base64.RawStdEncoding.EncodeToString(buf[10:40])
	out[2] = base64.RawStdEncoding.EncodeToString(buf[40:])
	return out, nil
}
