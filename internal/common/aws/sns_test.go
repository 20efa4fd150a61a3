package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: awssdk.String("msg-123")}, nil
}

func TestPublishJSON(t *testing.T) {
	api := &fakeSNS{}
	client := NewSNSClientWithAPI(api, "arn:aws:sns:eu-west-1:123:dispatch")

	id, err := client.PublishJSON(context.Background(), "message dispatched",
		map[string]interface{}{"state": "DONE"},
		map[string]string{"event": "dispatch.DONE"})
	require.NoError(t, err)

	assert.Equal(t, "msg-123", id)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:dispatch", awssdk.ToString(api.input.TopicArn))
	assert.Equal(t, "message dispatched", awssdk.ToString(api.input.Subject))

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(awssdk.ToString(api.input.Message)), &body))
	assert.Equal(t, "DONE", body["state"])

	attr := api.input.MessageAttributes["event"]
	assert.Equal(t, "String", awssdk.ToString(attr.DataType))
	assert.Equal(t, "dispatch.DONE", awssdk.ToString(attr.StringValue))
}

func TestPublishJSON_Error(t *testing.T) {
	client := NewSNSClientWithAPI(&fakeSNS{err: errors.New("throttled")}, "arn:topic")

	_, err := client.PublishJSON(context.Background(), "", struct{}{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestPublishJSON_MarshalError(t *testing.T) {
	api := &fakeSNS{}
	client := NewSNSClientWithAPI(api, "arn:topic")

	_, err := client.PublishJSON(context.Background(), "", make(chan int), nil)
	require.Error(t, err)
	assert.Nil(t, api.input)
}
