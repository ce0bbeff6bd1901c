package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"
)

// OneShot wraps a service that cannot be restarted, such as a session whose
// Run may only be called once. Any failure stops the whole tree.
type OneShot struct {
	suture.Service
}

func (o OneShot) Serve(ctx context.Context) error {
	err := o.Service.Serve(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", suture.ErrTerminateSupervisorTree, err)
}

func (o OneShot) String() string {
	return fmt.Sprint(o.Service)
}
