package workerproc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/scheduler"
)

// Serve is the child side of the protocol: it reads one job spec from in,
// runs it with runner, and writes the result to out. A failed job is still a
// successful exchange; only protocol errors are returned.
func Serve(ctx context.Context, in io.Reader, out io.Writer, runner scheduler.Runner) error {
	var spec model.JobSpec
	if err := json.NewDecoder(in).Decode(&spec); err != nil {
		return fmt.Errorf("failed to decode job spec: %w", err)
	}
	if spec.Variable == "" {
		return fmt.Errorf("job spec names no variable")
	}
	res := runner.Run(ctx, &spec)
	if res == nil {
		res = model.Failed(spec.Variable, fmt.Errorf("runner returned no result"))
	}
	if err := json.NewEncoder(out).Encode(res); err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}
	return nil
}
