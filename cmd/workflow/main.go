// Package main is the command-line client of the workflow engine. It runs every
// operation inline against the configured store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/netvariant/moqui-workflow/pkg/cmd"
	"github.com/netvariant/moqui-workflow/pkg/definition"
	"github.com/netvariant/moqui-workflow/pkg/engine"
	"github.com/netvariant/moqui-workflow/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "workflow",
		Usage:                 "Manage workflow definitions and instances",
		EnableShellCompletion: true,
		Flags:                 cmd.Flags(),
		Commands: []*cli.Command{
			workflowCommand(),
			instanceCommand(),
			variableCommand(),
			taskCommand(),
			{
				Name:   "sweep",
				Usage:  "Start every instance whose user activity timed out",
				Action: withEngine(sweep),
			},
			{
				Name:   "remind",
				Usage:  "Send reminders for overdue tasks",
				Action: withEngine(remind),
			},
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type engineAction func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error)

// withEngine builds the runtime around action and prints its result as JSON.
func withEngine(action engineAction) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		rt, err := cmd.NewRuntime(ctx, command, "workflow", false)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		result, err := action(ctx, command, rt.Engine)
		if err != nil {
			return err
		}

		return printJSON(command.Root().Writer, result)
	}
}

func printJSON(w io.Writer, v any) error {
	if v == nil {
		return nil
	}

	if w == nil {
		w = os.Stdout
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

func requireArgs(command *cli.Command, names ...string) ([]string, error) {
	if command.Args().Len() != len(names) {
		return nil, fmt.Errorf("%s expects arguments %v", command.Name, names)
	}

	return command.Args().Slice(), nil
}

func userFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "Acting user id",
	}
}

func workflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "workflow",
		Usage: "Workflow definitions",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Import YAML definitions",
				ArgsUsage: "FILE...",
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					if command.Args().Len() == 0 {
						return nil, fmt.Errorf("import expects at least one file")
					}

					var imported []string

					for _, path := range command.Args().Slice() {
						wf, err := definition.LoadFile(path)
						if err != nil {
							return nil, err
						}

						if err := e.SaveWorkflow(ctx, wf); err != nil {
							return nil, fmt.Errorf("%s: %w", path, err)
						}

						imported = append(imported, wf.ID)
					}

					return imported, nil
				}),
			},
			{
				Name:  "list",
				Usage: "List workflow definitions",
				Action: withEngine(func(ctx context.Context, _ *cli.Command, e *engine.Engine) (any, error) {
					return e.ListWorkflows(ctx)
				}),
			},
			{
				Name:      "disable",
				ArgsUsage: "WORKFLOW",
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					args, err := requireArgs(command, "WORKFLOW")
					if err != nil {
						return nil, err
					}

					return nil, e.DisableWorkflow(ctx, args[0])
				}),
			},
			{
				Name:      "enable",
				ArgsUsage: "WORKFLOW",
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					args, err := requireArgs(command, "WORKFLOW")
					if err != nil {
						return nil, err
					}

					return nil, e.EnableWorkflow(ctx, args[0])
				}),
			},
		},
	}
}

func instanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "instance",
		Usage: "Workflow instances",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create an instance for a record",
				ArgsUsage: "WORKFLOW KEY",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{Name: "start", Usage: "Start the instance after creating it"},
				},
				Action: withEngine(createInstance),
			},
			{
				Name:      "start",
				ArgsUsage: "INSTANCE",
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					args, err := requireArgs(command, "INSTANCE")
					if err != nil {
						return nil, err
					}

					if err := e.Start(ctx, args[0]); err != nil {
						return nil, err
					}

					return e.GetInstance(ctx, args[0])
				}),
			},
			instanceAction("suspend", (*engine.Engine).Suspend),
			instanceAction("resume", (*engine.Engine).Resume),
			instanceAction("abort", (*engine.Engine).Abort),
			{
				Name:      "show",
				ArgsUsage: "INSTANCE",
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					args, err := requireArgs(command, "INSTANCE")
					if err != nil {
						return nil, err
					}

					return e.GetInstance(ctx, args[0])
				}),
			},
		},
	}
}

func createInstance(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
	args, err := requireArgs(command, "WORKFLOW", "KEY")
	if err != nil {
		return nil, err
	}

	inst, err := e.CreateInstance(ctx, engine.CreateInstanceRequest{
		WorkflowID:      args[0],
		PrimaryKeyValue: args[1],
		InputUserID:     command.String("user"),
	})
	if err != nil {
		return nil, err
	}

	if !command.Bool("start") {
		return inst, nil
	}

	if err := e.Start(ctx, inst.ID); err != nil {
		return nil, err
	}

	return e.GetInstance(ctx, inst.ID)
}

func instanceAction(name string, action func(e *engine.Engine, ctx context.Context, instanceID, userID string) error) *cli.Command {
	return &cli.Command{
		Name:      name,
		ArgsUsage: "INSTANCE",
		Flags:     []cli.Flag{userFlag()},
		Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
			args, err := requireArgs(command, "INSTANCE")
			if err != nil {
				return nil, err
			}

			if err := action(e, ctx, args[0], command.String("user")); err != nil {
				return nil, err
			}

			return e.GetInstance(ctx, args[0])
		}),
	}
}

func variableCommand() *cli.Command {
	return &cli.Command{
		Name:  "variable",
		Usage: "Instance variables",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Evaluate an expression into a variable",
				ArgsUsage: "INSTANCE VARIABLE EXPRESSION",
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					args, err := requireArgs(command, "INSTANCE", "VARIABLE", "EXPRESSION")
					if err != nil {
						return nil, err
					}

					return e.UpdateVariable(ctx, args[0], args[1], args[2])
				}),
			},
		},
	}
}

func taskCommand() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "User tasks",
		Commands: []*cli.Command{
			{
				Name:      "update",
				Usage:     "Record progress on a task",
				ArgsUsage: "TASK",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{Name: "status", Usage: "IN_PROGRESS, DONE, APPROVED or REJECTED", Required: true},
					&cli.StringFlag{Name: "value", Usage: "Value of a VARIABLE task"},
					&cli.StringFlag{Name: "remark"},
				},
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					args, err := requireArgs(command, "TASK")
					if err != nil {
						return nil, err
					}

					return e.UpdateTask(ctx, engine.UpdateTaskRequest{
						TaskID: args[0],
						UserID: command.String("user"),
						Status: models.TaskStatus(command.String("status")),
						Value:  command.String("value"),
						Remark: command.String("remark"),
					})
				}),
			},
			{
				Name:  "list",
				Usage: "List open tasks of a user",
				Flags: []cli.Flag{
					userFlag(),
					&cli.IntFlag{Name: "limit", Value: 50},
				},
				Action: withEngine(func(ctx context.Context, command *cli.Command, e *engine.Engine) (any, error) {
					tasks, _, err := e.FindTasks(ctx, engine.TaskFilter{
						AssignedUserID: command.String("user"),
						Status:         models.TaskStatusPending,
						Limit:          command.Int("limit"),
					})

					return tasks, err
				}),
			},
		},
	}
}

func sweep(ctx context.Context, _ *cli.Command, e *engine.Engine) (any, error) {
	return e.SweepElapsed(ctx)
}

func remind(ctx context.Context, _ *cli.Command, e *engine.Engine) (any, error) {
	sent, err := e.SendReminders(ctx)

	return map[string]int{"sent": sent}, err
}
