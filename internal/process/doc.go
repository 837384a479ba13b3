// Package process runs and supervises subprocesses.
//
// Process wraps os/exec for a single subprocess: output is streamed
// line by line through an optional LogParser, and Shutdown stops the
// child with SIGINT, escalating to SIGKILL after a timeout.
//
// Pool manages named processes. It asks a CommandProvider for the argv
// when a process starts and reports every state transition, which lets
// callers tell a deliberate Stop from a crash:
//
//	pool := process.NewPool(&process.PoolOptions{
//		CommandProvider: func(id string) ([]string, error) {
//			return []string{"ffmpeg", "-i", "input_" + id + ".mp4", "out.mp4"}, nil
//		},
//		OnStateChange: func(id string, old, cur process.State, err error) {
//			log.Printf("%s: %s -> %s (%v)", id, old, cur, err)
//		},
//	})
//	_ = pool.Start("pipeline-1")
//	defer pool.StopAll()
package process
