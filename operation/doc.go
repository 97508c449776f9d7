// Package operation defines the unit of concurrent execution in a visionflow
// graph.
//
// An Operation owns input and output sockets and runs its processing loop on
// a dedicated goroutine. Concrete operations embed *Base, declare their
// sockets and properties at construction and implement Processor:
//
//	type Threshold struct {
//	    *operation.Base
//	    in  *socket.InputSocket
//	    out *socket.OutputSocket
//	}
//
//	func (t *Threshold) Process(ctx context.Context) error {
//	    img, err := readImage(t.in.Value())
//	    if err != nil {
//	        return err
//	    }
//	    return t.out.Emit(binarize(img))
//	}
//
// The worker loop parks at a checkpoint between cycles when a pause is
// requested, exits at the same checkpoint on stop, and turns any error
// returned from Process into an error-Stopped state reported to observers.
package operation
