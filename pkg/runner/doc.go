/*
Package runner drives a suspended run to completion through a pluggable I/O handler.

The engine returns to its caller every time a human node is reached. The runner
shows what the node presents, reads one line of input, hands it back to the
engine and repeats until the run ends or the user quits. Quitting leaves the
checkpoint in place so the run can be resumed later.

# Key Components

  - Runner: the interaction loop.
  - IOHandler: decouples how prompts are shown and answers are read.
  - TextHandler: interactive terminal usage with an optional markdown renderer.
  - JSONHandler: JSON-lines for scripted or headless usage.

# Usage

	r := runner.New(
		runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithLogger(logger),
	)
	outcome, err := r.Run(ctx, engine, outcome)
*/
package runner
