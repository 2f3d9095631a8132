// Package testutil holds helpers shared by nwave tests: component lifecycle
// with automatic cleanup, polling assertions and WAV fixtures.
//
//	func TestRun(t *testing.T) {
//		fsys := afero.NewMemMapFs()
//		testutil.WriteWav(t, fsys, "/in/a.wav", testutil.Tone(1, 800, 0.25), 8000)
//		testutil.T(t).Setup(sched)
//	}
package testutil
