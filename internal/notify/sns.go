package notify

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
)

// maxSubjectLen is the SNS limit on email subjects
const maxSubjectLen = 100

// SNSNotifier publishes to an SNS topic
type SNSNotifier struct {
	client   awscp.SNSAPI
	topicARN string
}

// NewSNSNotifier creates a notifier for topicARN
func NewSNSNotifier(client awscp.SNSAPI, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, subject, body string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(snsSubject(subject)),
		Message:  aws.String(body),
	})
	if err != nil {
		return wrapSinkError("sns", err)
	}
	return nil
}

// SNS rejects subjects with line breaks or over 100 characters
func snsSubject(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSubjectLen {
		s = s[:maxSubjectLen]
	}
	return s
}
