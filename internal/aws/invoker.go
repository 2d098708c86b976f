package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sony/gobreaker"
)

// LambdaInvoker calls a function with RequestResponse semantics: the caller
// waits for the function result. There is no retry; an open breaker fails fast.
// Build one with NewLambdaInvoker.
type LambdaInvoker struct {
	client       LambdaAPI
	functionName string
	breaker      *gobreaker.CircuitBreaker
}

// NewLambdaInvoker returns an invoker bound to functionName.
func NewLambdaInvoker(client LambdaAPI, functionName string) *LambdaInvoker {
	return &LambdaInvoker{
		client:       client,
		functionName: functionName,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "invoke-" + functionName,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Invoke sends payload and returns the function's response payload. A
// function-level error (FunctionError set) is returned as an error.
func (i *LambdaInvoker) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	res, err := i.breaker.Execute(func() (interface{}, error) {
		out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
			FunctionName:   &i.functionName,
			InvocationType: lambdatypes.InvocationTypeRequestResponse,
			Payload:        payload,
		})
		if err != nil {
			return nil, fmt.Errorf("invoke %s: %w", i.functionName, err)
		}
		if out.FunctionError != nil {
			return nil, fmt.Errorf("invoke %s: function error %s: %s", i.functionName, *out.FunctionError, string(out.Payload))
		}
		return out.Payload, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}
