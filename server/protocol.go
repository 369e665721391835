package server

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/service"
)

const (
	serviceSQS = "sqs"
	serviceSTS = "sts"

	headerTarget     = "X-Amz-Target"
	headerRequestID  = "x-amzn-RequestId"
	headerQueryError = "x-amzn-query-error"

	contentTypeJSON = "application/x-amz-json-1.0"
	contentTypeXML  = "text/xml"
)

var (
	awsAccountIDRegex = regexp.MustCompile(`^\d{12}$`)

	stsActionNames = map[string]bool{
		"AssumeRole":                 true,
		"AssumeRoleWithSAML":         true,
		"AssumeRoleWithWebIdentity":  true,
		"DecodeAuthorizationMessage": true,
		"GetAccessKeyInfo":           true,
		"GetCallerIdentity":          true,
		"GetFederationToken":         true,
		"GetSessionToken":            true,
	}
)

// call is one decoded API request.
type call struct {
	service   string
	action    string
	caller    service.Caller
	requestID string
	proto     protocol
	r         *http.Request
}

// decode fills v with the request parameters.
func (c *call) decode(v any) error {
	if err := c.proto.decode(c.r, v); err != nil {
		return &service.Error{
			Kind:    service.ErrInvalidArgument,
			Code:    "SerializationException",
			Message: "Unable to parse request: " + err.Error(),
		}
	}
	return nil
}

// protocol is a wire dialect.
type protocol interface {
	decode(r *http.Request, v any) error
	writeResult(w http.ResponseWriter, c *call, result any)
	writeError(w http.ResponseWriter, c *call, e *service.Error, status int, senderFault bool)
}

// newCall identifies the protocol, action, service and caller of r. The
// returned call is usable for error rendering even when err is not nil.
func (app *App) newCall(r *http.Request) (*call, error) {
	c := &call{
		service:   serviceSQS,
		requestID: uuid.NewString(),
		r:         r,
		caller:    app.callerFromRequest(r),
	}
	sig := credentialScope(r.Header.Get("Authorization"))

	if target := r.Header.Get(headerTarget); target != "" {
		c.proto = jsonProtocol{}
		prefix, action, ok := strings.Cut(target, ".")
		c.action = action
		if strings.HasPrefix(prefix, "AWSSecurityTokenService") || sig.service == serviceSTS {
			c.service = serviceSTS
		}
		if !ok || action == "" {
			return c, &service.Error{
				Kind:    service.ErrInvalidArgument,
				Code:    "InvalidAction",
				Message: "The X-Amz-Target header " + target + " does not name an action.",
			}
		}
		return c, nil
	}

	c.proto = queryProtocol{}
	if err := r.ParseForm(); err != nil {
		return c, &service.Error{
			Kind:    service.ErrInvalidArgument,
			Code:    "MalformedQueryString",
			Message: err.Error(),
		}
	}
	c.action = r.Form.Get("Action")
	if stsActionNames[c.action] || sig.service == serviceSTS {
		c.service = serviceSTS
	}
	if c.action == "" {
		return c, &service.Error{
			Kind:    service.ErrInvalidArgument,
			Code:    "MissingAction",
			Message: "The request must contain the parameter Action.",
		}
	}
	return c, nil
}

type jsonProtocol struct{}

func (jsonProtocol) decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (jsonProtocol) writeResult(w http.ResponseWriter, c *call, result any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if result == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}
	_ = json.NewEncoder(w).Encode(result)
}

func (jsonProtocol) writeError(w http.ResponseWriter, c *call, e *service.Error, status int, senderFault bool) {
	fault := "Receiver"
	if senderFault {
		fault = "Sender"
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set(headerRequestID, c.requestID)
	w.Header().Set(headerQueryError, e.Code+";"+fault)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Type: e.Code, Message: e.Message})
}

type queryProtocol struct{}

func (queryProtocol) decode(r *http.Request, v any) error {
	params := shapeQuery(queryTree(r.Form))
	if _, ok := params["QueueUrl"]; !ok && r.URL.Path != "" && r.URL.Path != "/" {
		params["QueueUrl"] = r.URL.Path
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// queryResult is implemented by responses with an XML rendering.
type queryResult interface {
	QueryResult() any
}

// emptyResult renders as <{Action}Result/> for actions without output.
type emptyResult struct {
	XMLName xml.Name
}

func (queryProtocol) writeResult(w http.ResponseWriter, c *call, result any) {
	env := models.ResultEnvelope{ResponseMetadata: models.ResponseMetadata{RequestId: c.requestID}}
	if qr, ok := result.(queryResult); ok {
		env.Body = qr.QueryResult()
	} else {
		env.Body = emptyResult{XMLName: xml.Name{Local: c.action + "Result"}}
	}
	writeXML(w, http.StatusOK, env)
}

func (queryProtocol) writeError(w http.ResponseWriter, c *call, e *service.Error, status int, senderFault bool) {
	fault := "Receiver"
	if senderFault {
		fault = "Sender"
	}
	w.Header().Set(headerRequestID, c.requestID)
	writeXML(w, status, models.ErrorResponseXML{
		Error:     models.ErrorXML{Type: fault, Code: e.Code, Message: e.Message},
		RequestId: c.requestID,
	})
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(v)
}

// scope is the credential scope of a SigV4 signature.
type scope struct {
	accessKeyID string
	region      string
	service     string
}

// credentialScope extracts the scope from an Authorization header of the
// form "AWS4-HMAC-SHA256 Credential=AKID/date/region/service/aws4_request,
// SignedHeaders=..., Signature=...". The signature itself is not verified.
func credentialScope(authorization string) scope {
	for _, field := range strings.Fields(authorization) {
		value, ok := strings.CutPrefix(strings.TrimSuffix(field, ","), "Credential=")
		if !ok {
			continue
		}
		parts := strings.Split(value, "/")
		if len(parts) < 4 {
			return scope{accessKeyID: parts[0]}
		}
		return scope{accessKeyID: parts[0], region: parts[2], service: parts[3]}
	}
	return scope{}
}

// callerFromRequest derives the caller from the request signature. Twelve
// digit access keys are taken as the account id, so distinct accounts can be
// simulated by signing with distinct keys.
func (app *App) callerFromRequest(r *http.Request) service.Caller {
	s := credentialScope(r.Header.Get("Authorization"))
	caller := service.Caller{
		AccountID:   app.accountID,
		Region:      app.region,
		AccessKeyID: s.accessKeyID,
	}
	if s.region != "" {
		caller.Region = s.region
	}
	if awsAccountIDRegex.MatchString(s.accessKeyID) {
		caller.AccountID = s.accessKeyID
	}
	return caller
}
