package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/chronolab/chronovm/internal/cliout"
	"github.com/chronolab/chronovm/pkg/apiclient"
	"github.com/chronolab/chronovm/pkg/governance/panel"
)

var governanceCmd = &cobra.Command{
	Use:   "governance",
	Short: "Manage a project's shared template, overrides, audit log and rollback via chronovmd",
}

func client() *apiclient.Client {
	return apiclient.New(serverURL).WithToken(authToken)
}

func init() {
	governanceCmd.AddCommand(templateCmd)
	governanceCmd.AddCommand(overrideCmd)
	governanceCmd.AddCommand(auditCmd)
	governanceCmd.AddCommand(rollbackCmd)
}

// --- template ---

var (
	templateModeChanges map[string]string
	templateLocked      []string
)

var templateCmd = &cobra.Command{
	Use:   "template <projectId>",
	Short: "Update a project's shared template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplate,
}

func init() {
	templateCmd.Flags().StringToStringVar(&templateModeChanges, "set", nil, "panelId=mode pairs to apply (mode is learning or pro)")
	templateCmd.Flags().StringSliceVar(&templateLocked, "lock", nil, "panelIds to lock against per-user override")
}

func runTemplate(cmd *cobra.Command, args []string) error {
	modeChanges := panel.ModeMap{}
	for id, mode := range templateModeChanges {
		modeChanges[panel.Id(id)] = panel.ViewMode(mode)
	}
	locked := make([]panel.Id, 0, len(templateLocked))
	for _, id := range templateLocked {
		locked = append(locked, panel.Id(id))
	}

	layout, err := client().UpdateTemplate(args[0], apiclient.UpdateTemplateRequest{
		ModeChanges:  modeChanges,
		LockedPanels: locked,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, layout)
}

// --- override ---

var (
	overridePanel       string
	overrideMode        string
	overrideDevice      string
	overrideBaseVersion int
)

var overrideCmd = &cobra.Command{
	Use:   "override <projectId>",
	Short: "Set a per-device panel override",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverride,
}

func init() {
	overrideCmd.Flags().StringVar(&overridePanel, "panel", "", "panel id to override")
	overrideCmd.Flags().StringVar(&overrideMode, "mode", "", "view mode to apply (learning or pro)")
	overrideCmd.Flags().StringVar(&overrideDevice, "device", "", "device id the override applies to")
	overrideCmd.Flags().IntVar(&overrideBaseVersion, "base-version", 0, "layout version the override was computed against")
	_ = overrideCmd.MarkFlagRequired("panel")
	_ = overrideCmd.MarkFlagRequired("mode")
	_ = overrideCmd.MarkFlagRequired("device")
}

func runOverride(cmd *cobra.Command, args []string) error {
	ov, err := client().SetOverride(args[0], apiclient.SetOverrideRequest{
		PanelId:     panel.Id(overridePanel),
		Mode:        panel.ViewMode(overrideMode),
		DeviceId:    overrideDevice,
		BaseVersion: overrideBaseVersion,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, ov)
}

// --- audit ---

var auditCmd = &cobra.Command{
	Use:   "audit <projectId>",
	Short: "List a project's audit log",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	entries, err := client().ListAudit(args[0])
	if err != nil {
		return err
	}

	headers := []string{"Version", "Action", "User", "Role", "Timestamp", "Changed Panels"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		changed := make([]string, 0, len(e.ChangedKeys))
		for _, id := range e.ChangedKeys {
			changed = append(changed, string(id))
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.LayoutVersion),
			string(e.Action),
			e.UserId,
			string(e.Role),
			e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			strings.Join(changed, ","),
		})
	}
	cliout.PrintTable(cmd.OutOrStdout(), headers, rows)
	return nil
}

// --- rollback ---

var (
	rollbackTargetVersion int
	rollbackForce         bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <projectId>",
	Short: "Republish a prior layout version as the project's newest version",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollback,
}

func init() {
	rollbackCmd.Flags().IntVar(&rollbackTargetVersion, "target-version", 0, "layout version to republish")
	rollbackCmd.Flags().BoolVar(&rollbackForce, "force", false, "skip the confirmation prompt")
	_ = rollbackCmd.MarkFlagRequired("target-version")
}

func runRollback(cmd *cobra.Command, args []string) error {
	if !rollbackForce {
		confirmed, err := confirmRollback(args[0], rollbackTargetVersion)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "rollback cancelled")
			return nil
		}
	}

	layout, err := client().Rollback(args[0], rollbackTargetVersion)
	if err != nil {
		return err
	}
	return printJSON(cmd, layout)
}

func confirmRollback(projectId string, targetVersion int) (bool, error) {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Republish version %d for project %s as the newest layout [y/N]", targetVersion, projectId),
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
