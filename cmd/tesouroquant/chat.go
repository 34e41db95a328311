package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/medicech/tesouro-quant/internal/llm"
	"github.com/medicech/tesouro-quant/pkg/utils"
)

// --- Chat Command ---

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask the fixed-income assistant (interactive without a question)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data := openData(ctx, false)
		adv, err := newAdvisor(ctx, data)
		if err != nil {
			return err
		}
		if adv == nil {
			return errors.New("no LLM configured; set GEMINI_API_KEY or llm.ollama_url")
		}

		width, _ := cmd.Flags().GetInt("width")
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return fmt.Errorf("markdown renderer: %w", err)
		}
		render := func(md string) string {
			out, err := renderer.Render(md)
			if err != nil {
				return md
			}
			return out
		}

		if len(args) > 0 {
			ans, err := adv.Ask(ctx, strings.Join(args, " "), nil)
			if err != nil {
				return err
			}
			fmt.Print(render(ans.Content))
			return nil
		}

		fmt.Println("💬 Consultor de Renda Fixa — digite sua pergunta (/sair para encerrar, /limpar para nova conversa)")
		var history []llm.Message
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("\n› ")
			if !scanner.Scan() {
				break
			}
			q := strings.TrimSpace(scanner.Text())
			switch q {
			case "":
				continue
			case "/sair", "/exit", "/quit":
				return nil
			case "/limpar", "/clear":
				history = nil
				fmt.Println("🧹 Conversa reiniciada.")
				continue
			}

			ans, err := adv.Ask(ctx, q, history)
			if err != nil {
				fmt.Printf("❌ %v\n", err)
				continue
			}
			fmt.Print(render(ans.Content))
			fmt.Printf("  (%s/%s · %d tokens · %s · base %s)\n", ans.Provider, ans.Model, ans.Tokens,
				ans.Duration.Round(100*time.Millisecond), utils.FormatDateBR(ans.BaseDate))
			history = append(history, llm.UserMessage(q), llm.AssistantMessage(ans.Content))
		}
		return scanner.Err()
	},
}

func init() {
	chatCmd.Flags().Int("width", 100, "word wrap width for rendered answers")
}
