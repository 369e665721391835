package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/tabeth/inhouseaws/models"
)

// Queue attribute names, as they appear on the wire.
var (
	attrDelaySeconds                          = string(types.QueueAttributeNameDelaySeconds)
	attrMaximumMessageSize                    = string(types.QueueAttributeNameMaximumMessageSize)
	attrMessageRetentionPeriod                = string(types.QueueAttributeNameMessageRetentionPeriod)
	attrPolicy                                = string(types.QueueAttributeNamePolicy)
	attrReceiveMessageWaitTimeSeconds         = string(types.QueueAttributeNameReceiveMessageWaitTimeSeconds)
	attrRedrivePolicy                         = string(types.QueueAttributeNameRedrivePolicy)
	attrVisibilityTimeout                     = string(types.QueueAttributeNameVisibilityTimeout)
	attrFifoQueue                             = string(types.QueueAttributeNameFifoQueue)
	attrContentBasedDeduplication             = string(types.QueueAttributeNameContentBasedDeduplication)
	attrSqsManagedSseEnabled                  = string(types.QueueAttributeNameSqsManagedSseEnabled)
	attrAll                                   = string(types.QueueAttributeNameAll)
	attrQueueArn                              = string(types.QueueAttributeNameQueueArn)
	attrCreatedTimestamp                      = string(types.QueueAttributeNameCreatedTimestamp)
	attrLastModifiedTimestamp                 = string(types.QueueAttributeNameLastModifiedTimestamp)
	attrApproximateNumberOfMessages           = string(types.QueueAttributeNameApproximateNumberOfMessages)
	attrApproximateNumberOfMessagesNotVisible = string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)
	attrApproximateNumberOfMessagesDelayed    = string(types.QueueAttributeNameApproximateNumberOfMessagesDelayed)
)

const (
	defaultPolicy        = `{"Version":"2012-10-17"}`
	emptyRedrivePolicy   = `{}`
	defaultVisibility    = 30
	defaultMaxMessage    = 262144
	defaultRetentionSecs = 345600
)

// DefaultQueueConfig is the configuration of a queue created without attributes.
func DefaultQueueConfig() models.QueueConfig {
	return models.QueueConfig{
		DelaySeconds:                  0,
		MaximumMessageSize:            defaultMaxMessage,
		MessageRetentionPeriod:        defaultRetentionSecs,
		Policy:                        defaultPolicy,
		ReceiveMessageWaitTimeSeconds: 0,
		RedrivePolicy:                 emptyRedrivePolicy,
		VisibilityTimeout:             defaultVisibility,
	}
}

// validateIntAttribute checks that valStr is an integer within [min, max].
func validateIntAttribute(valStr string, min, max int) (int, error) {
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if val < min || val > max {
		return 0, fmt.Errorf("must be between %d and %d", min, max)
	}
	return val, nil
}

func parseBoolAttribute(valStr string) (bool, error) {
	switch valStr {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, errors.New("must be 'true' or 'false'")
}

func validateJSONDocument(valStr string) error {
	var doc map[string]any
	if err := json.Unmarshal([]byte(valStr), &doc); err != nil {
		return errors.New("must be a valid JSON object")
	}
	return nil
}

// applyAttributes overlays the given attributes on base. Attributes are
// processed in name order so the first offending attribute is reported
// deterministically.
func applyAttributes(base models.QueueConfig, attrs map[string]string) (models.QueueConfig, error) {
	cfg := base
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		val := attrs[name]
		var err error
		switch name {
		case attrDelaySeconds:
			cfg.DelaySeconds, err = validateIntAttribute(val, 0, 900)
		case attrMaximumMessageSize:
			cfg.MaximumMessageSize, err = validateIntAttribute(val, 1024, 262144)
		case attrMessageRetentionPeriod:
			cfg.MessageRetentionPeriod, err = validateIntAttribute(val, 60, 1209600)
		case attrReceiveMessageWaitTimeSeconds:
			cfg.ReceiveMessageWaitTimeSeconds, err = validateIntAttribute(val, 0, 20)
		case attrVisibilityTimeout:
			cfg.VisibilityTimeout, err = validateIntAttribute(val, 0, 43200)
		case attrFifoQueue:
			cfg.FifoQueue, err = parseBoolAttribute(val)
		case attrContentBasedDeduplication:
			cfg.ContentBasedDeduplication, err = parseBoolAttribute(val)
		case attrSqsManagedSseEnabled:
			cfg.SqsManagedSseEnabled, err = parseBoolAttribute(val)
		case attrPolicy:
			err = validateJSONDocument(val)
			cfg.Policy = val
		case attrRedrivePolicy:
			err = validateJSONDocument(val)
			cfg.RedrivePolicy = val
		default:
			return base, errUnsupportedAttribute(name)
		}
		if err != nil {
			return base, errInvalidAttributeValue(name, err)
		}
	}
	return cfg, nil
}

type configField struct {
	name  string
	value string
}

// configFields lists a configuration in a fixed order. It drives both the
// re-create comparison and the attribute rendering.
func configFields(cfg models.QueueConfig) []configField {
	return []configField{
		{attrFifoQueue, strconv.FormatBool(cfg.FifoQueue)},
		{attrContentBasedDeduplication, strconv.FormatBool(cfg.ContentBasedDeduplication)},
		{attrDelaySeconds, strconv.Itoa(cfg.DelaySeconds)},
		{attrMaximumMessageSize, strconv.Itoa(cfg.MaximumMessageSize)},
		{attrMessageRetentionPeriod, strconv.Itoa(cfg.MessageRetentionPeriod)},
		{attrPolicy, cfg.Policy},
		{attrReceiveMessageWaitTimeSeconds, strconv.Itoa(cfg.ReceiveMessageWaitTimeSeconds)},
		{attrRedrivePolicy, cfg.RedrivePolicy},
		{attrSqsManagedSseEnabled, strconv.FormatBool(cfg.SqsManagedSseEnabled)},
		{attrVisibilityTimeout, strconv.Itoa(cfg.VisibilityTimeout)},
	}
}

// firstDifference returns the name of the first attribute whose value differs.
func firstDifference(a, b models.QueueConfig) (string, bool) {
	fa, fb := configFields(a), configFields(b)
	for i := range fa {
		if fa[i].value != fb[i].value {
			return fa[i].name, true
		}
	}
	return "", false
}

// readableAttributes is every attribute GetQueueAttributes can return.
var readableAttributes = map[string]bool{
	attrDelaySeconds:                          true,
	attrMaximumMessageSize:                    true,
	attrMessageRetentionPeriod:                true,
	attrPolicy:                                true,
	attrReceiveMessageWaitTimeSeconds:         true,
	attrRedrivePolicy:                         true,
	attrVisibilityTimeout:                     true,
	attrFifoQueue:                             true,
	attrContentBasedDeduplication:             true,
	attrSqsManagedSseEnabled:                  true,
	attrQueueArn:                              true,
	attrCreatedTimestamp:                      true,
	attrLastModifiedTimestamp:                 true,
	attrApproximateNumberOfMessages:           true,
	attrApproximateNumberOfMessagesNotVisible: true,
	attrApproximateNumberOfMessagesDelayed:    true,
}

func wantsCounters(names map[string]bool) bool {
	return names[attrApproximateNumberOfMessages] ||
		names[attrApproximateNumberOfMessagesNotVisible] ||
		names[attrApproximateNumberOfMessagesDelayed]
}

// renderAttributes builds the GetQueueAttributes output for the selected names.
func renderAttributes(q *models.Queue, counters models.QueueCounters, selected map[string]bool) map[string]string {
	all := make(map[string]string, len(readableAttributes))
	for _, f := range configFields(q.Config) {
		all[f.name] = f.value
	}
	// An empty redrive policy means "none" and is not reported.
	if q.Config.RedrivePolicy == emptyRedrivePolicy {
		delete(all, attrRedrivePolicy)
	}
	all[attrQueueArn] = q.ID
	all[attrCreatedTimestamp] = strconv.FormatInt(q.CreatedAt.Unix(), 10)
	all[attrLastModifiedTimestamp] = strconv.FormatInt(q.ModifiedAt.Unix(), 10)
	all[attrApproximateNumberOfMessages] = strconv.Itoa(counters.Visible)
	all[attrApproximateNumberOfMessagesNotVisible] = strconv.Itoa(counters.NotVisible)
	all[attrApproximateNumberOfMessagesDelayed] = strconv.Itoa(counters.Delayed)

	out := make(map[string]string, len(selected))
	for name := range selected {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out
}
