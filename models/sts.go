package models

import (
	"encoding/xml"
	"time"
)

// AssumeRoleWithWebIdentityRequest maps to the input of the STS AssumeRoleWithWebIdentity action.
type AssumeRoleWithWebIdentityRequest struct {
	// RoleArn is the role the caller asks to assume.
	RoleArn string `json:"RoleArn"`
	// RoleSessionName names the session. It defaults to "none".
	RoleSessionName string `json:"RoleSessionName"`
	// WebIdentityToken is the projected service-account JWT.
	WebIdentityToken string `json:"WebIdentityToken"`
	// DurationSeconds is accepted for compatibility; sessions always last 15 minutes.
	DurationSeconds *int `json:"DurationSeconds,omitempty"`
	// ProviderId is accepted for compatibility and ignored.
	ProviderId string `json:"ProviderId,omitempty"`
	// Policy is accepted for compatibility and ignored.
	Policy string `json:"Policy,omitempty"`
}

// Credentials are temporary security credentials.
type Credentials struct {
	AccessKeyId     string    `xml:"AccessKeyId"`
	SecretAccessKey string    `xml:"SecretAccessKey"`
	SessionToken    string    `xml:"SessionToken"`
	Expiration      time.Time `xml:"Expiration"`
}

// AssumedRoleUser identifies the principal behind temporary credentials.
type AssumedRoleUser struct {
	AssumedRoleId string `xml:"AssumedRoleId"`
	Arn           string `xml:"Arn"`
}

// AssumeRoleWithWebIdentityResponse maps to the output of AssumeRoleWithWebIdentity.
type AssumeRoleWithWebIdentityResponse struct {
	XMLName                     xml.Name        `xml:"AssumeRoleWithWebIdentityResult"`
	Credentials                 Credentials     `xml:"Credentials"`
	SubjectFromWebIdentityToken string          `xml:"SubjectFromWebIdentityToken"`
	AssumedRoleUser             AssumedRoleUser `xml:"AssumedRoleUser"`
	Provider                    string          `xml:"Provider"`
	Audience                    string          `xml:"Audience"`
	SourceIdentity              string          `xml:"SourceIdentity"`
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *AssumeRoleWithWebIdentityResponse) QueryResult() any { return r }

// GetCallerIdentityRequest maps to the input of the STS GetCallerIdentity action, which has no parameters.
type GetCallerIdentityRequest struct{}

// GetCallerIdentityResponse maps to the output of GetCallerIdentity.
type GetCallerIdentityResponse struct {
	XMLName xml.Name `xml:"GetCallerIdentityResult"`
	UserId  string   `xml:"UserId"`
	Account string   `xml:"Account"`
	Arn     string   `xml:"Arn"`
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *GetCallerIdentityResponse) QueryResult() any { return r }
