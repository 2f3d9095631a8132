// Package batch pairs source files with destinations, attaches a shared
// stage list and runs the resulting tasks on a scheduler.
//
//	b, err := batch.FromGlob(nil, "in/*.wav", "out", false)
//	if err != nil {
//		return err
//	}
//	rs, _ := effects.NewResample(16000, effects.HighQuality)
//	results, err := b.Apply(rs).Run(ctx, proc.Process)
package batch
