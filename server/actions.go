package server

import (
	"context"

	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/service"
)

// actionFunc executes one API action. A nil result renders as an empty
// response.
type actionFunc func(ctx context.Context, c *call) (any, error)

// typed adapts a service method with a request model and a response model.
func typed[Req, Resp any](fn func(context.Context, service.Caller, *Req) (*Resp, error)) actionFunc {
	return func(ctx context.Context, c *call) (any, error) {
		req := new(Req)
		if err := c.decode(req); err != nil {
			return nil, err
		}
		resp, err := fn(ctx, c.caller, req)
		if err != nil || resp == nil {
			return nil, err
		}
		return resp, nil
	}
}

// noOutput adapts a service method whose action returns nothing.
func noOutput[Req any](fn func(context.Context, service.Caller, *Req) error) actionFunc {
	return func(ctx context.Context, c *call) (any, error) {
		req := new(Req)
		if err := c.decode(req); err != nil {
			return nil, err
		}
		return nil, fn(ctx, c.caller, req)
	}
}

func (app *App) registerSQSActions() map[string]actionFunc {
	queues := app.Services.Queues
	messages := app.Services.Messages
	return map[string]actionFunc{
		"CreateQueue":        typed(app.createQueue),
		"GetQueueUrl":        typed(app.getQueueURL),
		"ListQueues":         typed(app.listQueues),
		"GetQueueAttributes": typed(app.getQueueAttributes),
		"SetQueueAttributes": noOutput(func(ctx context.Context, caller service.Caller, req *models.SetQueueAttributesRequest) error {
			return queues.SetQueueAttributes(ctx, caller, req.QueueUrl, req.Attributes)
		}),
		"TagQueue": noOutput(func(ctx context.Context, caller service.Caller, req *models.TagQueueRequest) error {
			return queues.TagQueue(ctx, caller, req.QueueUrl, req.Tags)
		}),
		"UntagQueue": noOutput(func(ctx context.Context, caller service.Caller, req *models.UntagQueueRequest) error {
			return queues.UntagQueue(ctx, caller, req.QueueUrl, req.TagKeys)
		}),
		"ListQueueTags": typed(app.listQueueTags),
		"PurgeQueue": noOutput(func(ctx context.Context, caller service.Caller, req *models.PurgeQueueRequest) error {
			return queues.PurgeQueue(ctx, caller, req.QueueUrl)
		}),
		"DeleteQueue": noOutput(func(ctx context.Context, caller service.Caller, req *models.DeleteQueueRequest) error {
			return queues.DeleteQueue(ctx, caller, req.QueueUrl)
		}),

		"SendMessage":                  typed(messages.SendMessage),
		"SendMessageBatch":             typed(messages.SendMessageBatch),
		"ReceiveMessage":               typed(messages.ReceiveMessage),
		"DeleteMessage":                noOutput(messages.DeleteMessage),
		"DeleteMessageBatch":           typed(messages.DeleteMessageBatch),
		"ChangeMessageVisibility":      noOutput(messages.ChangeMessageVisibility),
		"ChangeMessageVisibilityBatch": typed(messages.ChangeMessageVisibilityBatch),
	}
}

func (app *App) registerSTSActions() map[string]actionFunc {
	federation := app.Services.Federation
	return map[string]actionFunc{
		"AssumeRoleWithWebIdentity": typed(federation.AssumeRoleWithWebIdentity),
		"GetCallerIdentity": typed(func(ctx context.Context, caller service.Caller, _ *models.GetCallerIdentityRequest) (*models.GetCallerIdentityResponse, error) {
			return federation.GetCallerIdentity(ctx, caller)
		}),
	}
}

func (app *App) createQueue(ctx context.Context, caller service.Caller, req *models.CreateQueueRequest) (*models.CreateQueueResponse, error) {
	q, err := app.Services.Queues.CreateQueue(ctx, caller, req.QueueName, req.Attributes, req.Tags)
	if err != nil {
		return nil, err
	}
	return &models.CreateQueueResponse{QueueURL: q.URL}, nil
}

func (app *App) getQueueURL(ctx context.Context, caller service.Caller, req *models.GetQueueURLRequest) (*models.GetQueueURLResponse, error) {
	u, err := app.Services.Queues.GetQueueURL(ctx, caller, req.QueueName, req.QueueOwnerAWSAccountId)
	if err != nil {
		return nil, err
	}
	return &models.GetQueueURLResponse{QueueUrl: u}, nil
}

func (app *App) listQueues(ctx context.Context, caller service.Caller, req *models.ListQueuesRequest) (*models.ListQueuesResponse, error) {
	urls, next, err := app.Services.Queues.ListQueues(ctx, caller, req.QueueNamePrefix, req.MaxResults, req.NextToken)
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}
	return &models.ListQueuesResponse{QueueUrls: urls, NextToken: next}, nil
}

func (app *App) getQueueAttributes(ctx context.Context, caller service.Caller, req *models.GetQueueAttributesRequest) (*models.GetQueueAttributesResponse, error) {
	attrs, err := app.Services.Queues.GetQueueAttributes(ctx, caller, req.QueueUrl, req.AttributeNames)
	if err != nil {
		return nil, err
	}
	return &models.GetQueueAttributesResponse{Attributes: attrs}, nil
}

func (app *App) listQueueTags(ctx context.Context, caller service.Caller, req *models.ListQueueTagsRequest) (*models.ListQueueTagsResponse, error) {
	tags, err := app.Services.Queues.ListQueueTags(ctx, caller, req.QueueUrl)
	if err != nil {
		return nil, err
	}
	return &models.ListQueueTagsResponse{Tags: tags}, nil
}
