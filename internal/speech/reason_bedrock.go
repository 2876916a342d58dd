package speech

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

// BedrockConverseAPI is the subset of the Bedrock client used for reason
// classification.
type BedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// ReasonClassifier labels release reasons with a small LLM, falling back to
// the keyword rules when the model is unavailable or answers off-list.
type ReasonClassifier struct {
	client  BedrockConverseAPI
	modelID string
	logger  *logging.Logger
}

// NewReasonClassifier creates a classifier. A nil client is allowed and makes
// Classify purely keyword-based.
func NewReasonClassifier(client BedrockConverseAPI, modelID string, logger *logging.Logger) *ReasonClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReasonClassifier{client: client, modelID: modelID, logger: logger}
}

const reasonSystemPrompt = `You classify the reason a home-care worker gives for releasing a shift. Reply with exactly one word from the allowed list and nothing else.`

func reasonPrompt(text string) string {
	return fmt.Sprintf(`Allowed categories: illness, family_emergency, work_conflict, transportation, personal, scheduling_conflict, other.

Reason given by the worker:
%s`, text)
}

// Classify returns one of the reason categories for the given free text.
func (c *ReasonClassifier) Classify(ctx context.Context, text string) string {
	if c == nil || c.client == nil || c.modelID == "" {
		return CategorizeReason(text)
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		System: []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: reasonSystemPrompt},
		},
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: reasonPrompt(text)},
				},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(16),
			Temperature: aws.Float32(0.0),
		},
	}

	resp, err := c.client.Converse(ctx, input)
	if err != nil {
		c.logger.Warn("speech: reason classification failed, using keyword rules", "error", err)
		return CategorizeReason(text)
	}
	answer := strings.ToLower(strings.TrimSpace(converseText(resp)))
	switch answer {
	case ReasonIllness, ReasonFamilyEmergency, ReasonWorkConflict,
		ReasonTransportation, ReasonPersonal, ReasonSchedulingConflict, ReasonOther:
		return answer
	}
	return CategorizeReason(text)
}

func converseText(resp *bedrockruntime.ConverseOutput) string {
	if resp == nil || resp.Output == nil {
		return ""
	}
	output, ok := resp.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || len(output.Value.Content) == 0 {
		return ""
	}
	block, ok := output.Value.Content[0].(*brtypes.ContentBlockMemberText)
	if !ok {
		return ""
	}
	return block.Value
}
