package service

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/tabeth/inhouseaws/models"
)

const (
	transportString = 1
	transportBinary = 2
)

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// bodyDigest is the MD5OfMessageBody of a message.
func bodyDigest(body string) string { return md5Hex([]byte(body)) }

// contentDedupID is the deduplication id derived from a body when a FIFO
// queue has ContentBasedDeduplication enabled.
func contentDedupID(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	buf.Write(n[:])
	buf.Write(b)
}

// encodeAttribute appends one attribute in the SQS digest encoding: name,
// data type, a transport byte, then the value, each length-prefixed.
func encodeAttribute(buf *bytes.Buffer, name, dataType string, stringValue *string, binaryValue []byte) {
	writeLengthPrefixed(buf, []byte(name))
	writeLengthPrefixed(buf, []byte(dataType))
	if strings.HasPrefix(dataType, "Binary") {
		buf.WriteByte(transportBinary)
		writeLengthPrefixed(buf, binaryValue)
		return
	}
	buf.WriteByte(transportString)
	var s string
	if stringValue != nil {
		s = *stringValue
	}
	writeLengthPrefixed(buf, []byte(s))
}

// attributesDigest is the MD5OfMessageAttributes of a set of custom
// attributes, or "" for an empty set.
func attributesDigest(attrs map[string]models.MessageAttributeValue) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		v := attrs[name]
		encodeAttribute(&buf, name, v.DataType, v.StringValue, v.BinaryValue)
	}
	return md5Hex(buf.Bytes())
}

// systemAttributesDigest is the MD5OfMessageSystemAttributes of a send request.
func systemAttributesDigest(attrs map[string]models.MessageSystemAttributeValue) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		v := attrs[name]
		encodeAttribute(&buf, name, v.DataType, v.StringValue, v.BinaryValue)
	}
	return md5Hex(buf.Bytes())
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
