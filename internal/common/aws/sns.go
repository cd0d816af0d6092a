package aws

import (
	"context"
	"fmt"

	"jobboard-realtime/internal/common/config"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSClient publishes JSON documents to SNS topics.
type SNSClient struct {
	client *sns.Client
}

func NewSNSClient(ctx context.Context, cfg config.AWSConfig) (*SNSClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &SNSClient{client: sns.NewFromConfig(awsCfg)}, nil
}

func (s *SNSClient) Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return s.client.Publish(ctx, input, optFns...)
}

// NewJSONPublishInput builds a publish request for body with string message
// attributes, skipping empty values.
func NewJSONPublishInput(topicARN string, body []byte, attributes map[string]string) *sns.PublishInput {
	input := &sns.PublishInput{
		TopicArn: awssdk.String(topicARN),
		Message:  awssdk.String(string(body)),
	}
	for name, value := range attributes {
		if value == "" {
			continue
		}
		if input.MessageAttributes == nil {
			input.MessageAttributes = make(map[string]types.MessageAttributeValue)
		}
		input.MessageAttributes[name] = types.MessageAttributeValue{
			DataType:    awssdk.String("String"),
			StringValue: awssdk.String(value),
		}
	}
	return input
}
