package lifecycle

import "context"

type stepKey struct{}

// StepInfo identifies the step an Executor call belongs to.
type StepInfo struct {
	Host string
	Name string
}

func withStep(ctx context.Context, host, name string) context.Context {
	return context.WithValue(ctx, stepKey{}, StepInfo{Host: host, Name: name})
}

// StepFromContext returns the step an Executor is running, if any.
func StepFromContext(ctx context.Context) (StepInfo, bool) {
	info, ok := ctx.Value(stepKey{}).(StepInfo)
	return info, ok
}
