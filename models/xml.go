package models

import (
	"encoding/base64"
	"encoding/xml"
	"sort"
)

// ResultEnvelope is the root element of every query protocol response. Body
// is the action specific result element, or nil for actions without output.
type ResultEnvelope struct {
	XMLName          xml.Name         `xml:"Result"`
	Body             any              `xml:",omitempty"`
	ResponseMetadata ResponseMetadata `xml:"ResponseMetadata"`
}

// ResponseMetadata carries the request id.
type ResponseMetadata struct {
	RequestId string `xml:"RequestId"`
}

// ErrorResponseXML is the query protocol error document.
type ErrorResponseXML struct {
	XMLName   xml.Name `xml:"ErrorResponse"`
	Error     ErrorXML `xml:"Error"`
	RequestId string   `xml:"RequestId"`
}

// ErrorXML describes a single error. Type is "Sender" or "Receiver".
type ErrorXML struct {
	Type    string `xml:"Type"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// AttributeXML is a Name/Value pair, used for queue and message system attributes.
type AttributeXML struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

// TagXML is a Key/Value pair.
type TagXML struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

// MessageAttributeXML is a custom message attribute.
type MessageAttributeXML struct {
	Name  string                   `xml:"Name"`
	Value MessageAttributeValueXML `xml:"Value"`
}

// MessageAttributeValueXML mirrors MessageAttributeValue; binary values are base64 encoded.
type MessageAttributeValueXML struct {
	StringValue string `xml:"StringValue,omitempty"`
	BinaryValue string `xml:"BinaryValue,omitempty"`
	DataType    string `xml:"DataType"`
}

// MessageXML is a received message.
type MessageXML struct {
	MessageId              string                `xml:"MessageId"`
	ReceiptHandle          string                `xml:"ReceiptHandle"`
	MD5OfBody              string                `xml:"MD5OfBody"`
	Body                   string                `xml:"Body"`
	MD5OfMessageAttributes string                `xml:"MD5OfMessageAttributes,omitempty"`
	Attribute              []AttributeXML        `xml:"Attribute"`
	MessageAttribute       []MessageAttributeXML `xml:"MessageAttribute"`
}

// BatchResultErrorEntryXML is a failed batch entry.
type BatchResultErrorEntryXML struct {
	Id          string `xml:"Id"`
	Code        string `xml:"Code"`
	Message     string `xml:"Message"`
	SenderFault bool   `xml:"SenderFault"`
}

// IdXML is a successful batch entry that only echoes the entry id.
type IdXML struct {
	Id string `xml:"Id"`
}

type createQueueResultXML struct {
	XMLName  xml.Name `xml:"CreateQueueResult"`
	QueueUrl string   `xml:"QueueUrl"`
}

type getQueueURLResultXML struct {
	XMLName  xml.Name `xml:"GetQueueUrlResult"`
	QueueUrl string   `xml:"QueueUrl"`
}

type listQueuesResultXML struct {
	XMLName   xml.Name `xml:"ListQueuesResult"`
	QueueUrl  []string `xml:"QueueUrl"`
	NextToken string   `xml:"NextToken,omitempty"`
}

type getQueueAttributesResultXML struct {
	XMLName   xml.Name       `xml:"GetQueueAttributesResult"`
	Attribute []AttributeXML `xml:"Attribute"`
}

type sendMessageResultXML struct {
	XMLName                xml.Name `xml:"SendMessageResult"`
	MessageId              string   `xml:"MessageId"`
	MD5OfMessageBody       string   `xml:"MD5OfMessageBody"`
	MD5OfMessageAttributes string   `xml:"MD5OfMessageAttributes,omitempty"`
	SequenceNumber         string   `xml:"SequenceNumber,omitempty"`
}

type receiveMessageResultXML struct {
	XMLName xml.Name     `xml:"ReceiveMessageResult"`
	Message []MessageXML `xml:"Message"`
}

type sendMessageBatchResultEntryXML struct {
	Id                     string `xml:"Id"`
	MessageId              string `xml:"MessageId"`
	MD5OfMessageBody       string `xml:"MD5OfMessageBody"`
	MD5OfMessageAttributes string `xml:"MD5OfMessageAttributes,omitempty"`
	SequenceNumber         string `xml:"SequenceNumber,omitempty"`
}

type sendMessageBatchResultXML struct {
	XMLName                     xml.Name                         `xml:"SendMessageBatchResult"`
	SendMessageBatchResultEntry []sendMessageBatchResultEntryXML `xml:"SendMessageBatchResultEntry"`
	BatchResultErrorEntry       []BatchResultErrorEntryXML       `xml:"BatchResultErrorEntry"`
}

type deleteMessageBatchResultXML struct {
	XMLName                       xml.Name                   `xml:"DeleteMessageBatchResult"`
	DeleteMessageBatchResultEntry []IdXML                    `xml:"DeleteMessageBatchResultEntry"`
	BatchResultErrorEntry         []BatchResultErrorEntryXML `xml:"BatchResultErrorEntry"`
}

type changeMessageVisibilityBatchResultXML struct {
	XMLName                                 xml.Name                   `xml:"ChangeMessageVisibilityBatchResult"`
	ChangeMessageVisibilityBatchResultEntry []IdXML                    `xml:"ChangeMessageVisibilityBatchResultEntry"`
	BatchResultErrorEntry                   []BatchResultErrorEntryXML `xml:"BatchResultErrorEntry"`
}

type listQueueTagsResultXML struct {
	XMLName xml.Name `xml:"ListQueueTagsResult"`
	Tag     []TagXML `xml:"Tag"`
}

// sortedKeys gives XML renderings of maps a stable order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func attributesXML(m map[string]string) []AttributeXML {
	out := make([]AttributeXML, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, AttributeXML{Name: k, Value: m[k]})
	}
	return out
}

func batchErrorsXML(entries []BatchResultErrorEntry) []BatchResultErrorEntryXML {
	out := make([]BatchResultErrorEntryXML, 0, len(entries))
	for _, e := range entries {
		out = append(out, BatchResultErrorEntryXML(e))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *CreateQueueResponse) QueryResult() any {
	return &createQueueResultXML{QueueUrl: r.QueueURL}
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *GetQueueURLResponse) QueryResult() any {
	return &getQueueURLResultXML{QueueUrl: r.QueueUrl}
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *ListQueuesResponse) QueryResult() any {
	return &listQueuesResultXML{QueueUrl: r.QueueUrls, NextToken: r.NextToken}
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *GetQueueAttributesResponse) QueryResult() any {
	return &getQueueAttributesResultXML{Attribute: attributesXML(r.Attributes)}
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *SendMessageResponse) QueryResult() any {
	return &sendMessageResultXML{
		MessageId:              r.MessageId,
		MD5OfMessageBody:       r.MD5OfMessageBody,
		MD5OfMessageAttributes: deref(r.MD5OfMessageAttributes),
		SequenceNumber:         deref(r.SequenceNumber),
	}
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *ReceiveMessageResponse) QueryResult() any {
	out := &receiveMessageResultXML{Message: make([]MessageXML, 0, len(r.Messages))}
	for _, m := range r.Messages {
		msg := MessageXML{
			MessageId:              m.MessageId,
			ReceiptHandle:          m.ReceiptHandle,
			MD5OfBody:              m.MD5OfBody,
			Body:                   m.Body,
			MD5OfMessageAttributes: deref(m.MD5OfMessageAttributes),
			Attribute:              attributesXML(m.Attributes),
		}
		for _, name := range sortedKeys(m.MessageAttributes) {
			v := m.MessageAttributes[name]
			value := MessageAttributeValueXML{DataType: v.DataType, StringValue: deref(v.StringValue)}
			if v.BinaryValue != nil {
				value.BinaryValue = base64.StdEncoding.EncodeToString(v.BinaryValue)
			}
			msg.MessageAttribute = append(msg.MessageAttribute, MessageAttributeXML{Name: name, Value: value})
		}
		out.Message = append(out.Message, msg)
	}
	return out
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *SendMessageBatchResponse) QueryResult() any {
	out := &sendMessageBatchResultXML{BatchResultErrorEntry: batchErrorsXML(r.Failed)}
	for _, e := range r.Successful {
		out.SendMessageBatchResultEntry = append(out.SendMessageBatchResultEntry, sendMessageBatchResultEntryXML{
			Id:                     e.Id,
			MessageId:              e.MessageId,
			MD5OfMessageBody:       e.MD5OfMessageBody,
			MD5OfMessageAttributes: deref(e.MD5OfMessageAttributes),
			SequenceNumber:         deref(e.SequenceNumber),
		})
	}
	return out
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *DeleteMessageBatchResponse) QueryResult() any {
	out := &deleteMessageBatchResultXML{BatchResultErrorEntry: batchErrorsXML(r.Failed)}
	for _, e := range r.Successful {
		out.DeleteMessageBatchResultEntry = append(out.DeleteMessageBatchResultEntry, IdXML(e))
	}
	return out
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *ChangeMessageVisibilityBatchResponse) QueryResult() any {
	out := &changeMessageVisibilityBatchResultXML{BatchResultErrorEntry: batchErrorsXML(r.Failed)}
	for _, e := range r.Successful {
		out.ChangeMessageVisibilityBatchResultEntry = append(out.ChangeMessageVisibilityBatchResultEntry, IdXML(e))
	}
	return out
}

// QueryResult returns the XML element rendered inside the query protocol envelope.
func (r *ListQueueTagsResponse) QueryResult() any {
	out := &listQueueTagsResultXML{}
	for _, k := range sortedKeys(r.Tags) {
		out.Tag = append(out.Tag, TagXML{Key: k, Value: r.Tags[k]})
	}
	return out
}
