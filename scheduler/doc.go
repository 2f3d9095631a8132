// Package scheduler runs file-processing tasks on a bounded pool of workers
// and hands their results back in submission order.
//
// Tasks are scheduled without blocking and start in FIFO order as workers
// become free. A Stream drains results strictly in the order tasks were
// scheduled, optionally bounded by a deadline. Once a deadline passes the
// remaining work is cancelled and reported as cancelled rather than
// abandoned.
//
//	s := scheduler.New(proc.Process, scheduler.WithWorkers(8))
//	defer s.Close()
//
//	_ = s.Schedule(tasks...)
//	for r, err := range s.Results(scheduler.WithTimeout(time.Minute)).All(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(r)
//	}
package scheduler
