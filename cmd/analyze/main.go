// Command analyze runs one alignment analysis locally: it loads the plan
// documents, executes all four layers against the configured oracle and
// writes the result document as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/strataline/alignd/internal/util"
	"github.com/strataline/alignd/pkg/loader"
	"github.com/strataline/alignd/pkg/logger"
	"github.com/strataline/alignd/pkg/logger/console"
	"github.com/strataline/alignd/pkg/oracle"
	ooracle "github.com/strataline/alignd/pkg/oracle/ollama"
	goracle "github.com/strataline/alignd/pkg/oracle/openai"
	"github.com/strataline/alignd/pkg/pipeline"
)

func main() {
	strategicPath := flag.String("strategic", "", "path to the strategic plan document (.txt, .md or .pdf)")
	actionPaths := flag.String("action", "", "comma-separated paths to action plan documents")
	combinedPath := flag.String("combined", "", "path to a combined document holding both plans")
	model := flag.String("model", "", "oracle model (defaults to ORACLE_MODEL)")
	outPath := flag.String("out", "", "write results to this file instead of stdout")
	flag.Parse()

	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	if *combinedPath == "" && (*strategicPath == "" || *actionPaths == "") {
		logger.Fatal("Either -combined, or both -strategic and -action must be given")
	}

	ctx := context.Background()
	docs := loader.NewPlanLoader()

	var strategicText, actionText string
	var err error
	if *combinedPath != "" {
		text, err := docs.LoadDocument(ctx, *combinedPath)
		if err != nil {
			logger.Fatal("Failed to load combined document", "err", err)
		}
		strategicText, actionText = loader.SplitCombined(text)
	} else {
		strategicText, actionText, err = docs.LoadPlans(ctx, *strategicPath, strings.Split(*actionPaths, ","))
		if err != nil {
			logger.Fatal("Failed to load plan documents", "err", err)
		}
	}

	oracleModel := *model
	if oracleModel == "" {
		oracleModel = util.GetEnv("ORACLE_MODEL")
	}

	adapter := util.GetEnv("AI_ADAPTER")
	var oracleClient oracle.Client

	switch adapter {
	case "ollama":
		client, err := ooracle.New(ooracle.Params{
			JudgmentModel: oracleModel,

			BaseURL: util.GetEnv("ORACLE_URL"),
			APIKey:  util.GetEnv("ORACLE_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("ORACLE_PARALLEL_REQ", 4)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama oracle", "err", err)
		}
		oracleClient = client
	default:
		client, err := goracle.New(goracle.Params{
			JudgmentModel: oracleModel,

			ChatURL: util.GetEnv("ORACLE_URL"),
			ChatKey: util.GetEnv("ORACLE_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create OpenAI oracle", "err", err)
		}
		oracleClient = client
	}

	sess, err := pipeline.NewSession(pipeline.Params{
		Oracle: oracle.NewCachedClient(oracleClient),
		Model:  oracleModel,
	})
	if err != nil {
		logger.Fatal("Failed to create session", "err", err)
	}

	if err := sess.Run(ctx, strategicText, actionText); err != nil {
		logger.Fatal("Analysis failed", "session_id", sess.ID, "layers_done", sess.LayersDone(), "err", err)
	}

	output, err := json.MarshalIndent(sess.Results, "", "  ")
	if err != nil {
		logger.Fatal("Failed to marshal results", "err", err)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, output, 0o644); err != nil {
			logger.Fatal("Failed to write results", "path", *outPath, "err", err)
		}
		logger.Info("Results written", "session_id", sess.ID, "path", *outPath)
		return
	}
	os.Stdout.Write(output)
	os.Stdout.Write([]byte("\n"))
}
