package cmd

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
)

func newGenerateCmd(c *cli) *cobra.Command {
	genCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write application documents with the configured language model",
	}

	var company, title, description, descFile string
	letterCmd := &cobra.Command{
		Use:   "cover-letter",
		Short: "Generate a cover letter for one job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jd, err := jobDescription(description, descFile)
			if err != nil {
				return err
			}
			if jd == "" {
				jd = fmt.Sprintf("%s at %s", title, company)
			}
			gen, err := c.deps.newTextGen(cmd.Context(), c.cfg.LLM, c.logger)
			if err != nil {
				return err
			}
			letter, err := gen.GenerateCoverLetter(cmd.Context(), jd, company, title, c.cfg.Profile.Profile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), letter)
			return nil
		},
	}
	letterCmd.Flags().StringVar(&company, "company", "", "company name")
	letterCmd.Flags().StringVar(&title, "title", "", "job title")
	letterCmd.Flags().StringVar(&description, "description", "", "job description text")
	letterCmd.Flags().StringVar(&descFile, "description-file", "", "read the job description from a file")
	_ = letterCmd.MarkFlagRequired("company")
	_ = letterCmd.MarkFlagRequired("title")

	var resumePath, outPath, tailorDesc, tailorDescFile string
	tailorCmd := &cobra.Command{
		Use:   "tailor",
		Short: "Tailor the master resume JSON to a job description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jd, err := jobDescription(tailorDesc, tailorDescFile)
			if err != nil {
				return err
			}
			if jd == "" {
				return fmt.Errorf("a job description is required (--description or --description-file)")
			}
			master, err := loadResume(resumePath, c.cfg)
			if err != nil {
				return err
			}
			gen, err := c.deps.newTextGen(cmd.Context(), c.cfg.LLM, c.logger)
			if err != nil {
				return err
			}
			tailored, err := gen.TailorResume(cmd.Context(), jd, master)
			if err != nil {
				return err
			}
			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(tailored, "", "  ")
			if err != nil {
				return err
			}
			if outPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("writing tailored resume: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tailored resume written to %s\n", outPath)
			return nil
		},
	}
	tailorCmd.Flags().StringVar(&resumePath, "resume", "", "master resume JSON (default profile.master_resume_path)")
	tailorCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the tailored resume here instead of stdout")
	tailorCmd.Flags().StringVar(&tailorDesc, "description", "", "job description text")
	tailorCmd.Flags().StringVar(&tailorDescFile, "description-file", "", "read the job description from a file")

	genCmd.AddCommand(letterCmd, tailorCmd)
	return genCmd
}

func jobDescription(text, file string) (string, error) {
	if file == "" {
		return strings.TrimSpace(text), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading job description: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func loadResume(path string, cfg *config.Config) (map[string]any, error) {
	if path == "" {
		path = cfg.Profile.MasterResumePath
	}
	if path == "" {
		return nil, fmt.Errorf("no master resume: pass --resume or set profile.master_resume_path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading master resume: %w", err)
	}
	var master map[string]any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &master); err != nil {
		return nil, fmt.Errorf("master resume %s is not a JSON object: %w", path, err)
	}
	return master, nil
}
