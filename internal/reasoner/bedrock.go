package reasoner

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"screenpilot/internal/model"
)

// Bedrock plans through the AWS Bedrock Converse API. Always a cloud
// reasoner; the router never routes sensitive tiers here.
type Bedrock struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int32
}

// NewBedrock builds a Bedrock client from the ambient AWS config
// (environment, shared config, instance role).
func NewBedrock(ctx context.Context, region, modelID string) (*Bedrock, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Bedrock{
		client:    bedrockruntime.NewFromConfig(cfg),
		modelID:   modelID,
		maxTokens: 800,
	}, nil
}

func (b *Bedrock) Kind() Kind { return KindCloud }

func (b *Bedrock) Plan(ctx context.Context, payload, memContext string) (model.Plan, error) {
	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.modelID),
		System: []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: planSystemPrompt},
		},
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: buildUserPrompt(payload, memContext)},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(b.maxTokens),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		return model.Plan{}, fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || len(msg.Value.Content) == 0 {
		return model.Plan{}, fmt.Errorf("empty bedrock response")
	}
	text, ok := msg.Value.Content[0].(*brtypes.ContentBlockMemberText)
	if !ok {
		return model.Plan{}, fmt.Errorf("unexpected bedrock content block")
	}
	return parsePlan(text.Value)
}
