// Command phsbench runs PHS* search over a batch of boards, distributing
// them across a worker pool backed by one or more batched model evaluators,
// and reports live throughput. Flag set, graceful shutdown, and the
// stats-ticker loop are grounded on the teacher's self-play driver;
// per-run traces are archived to parquet the way generated training rows
// were archived there.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kepford/phsstar/game"
	"github.com/kepford/phsstar/inference"
	"github.com/kepford/phsstar/inference/onnxpredictor"
	"github.com/kepford/phsstar/inference/refpredictor"
	"github.com/kepford/phsstar/internal/logging"
	"github.com/kepford/phsstar/internal/tracestore"
	"github.com/kepford/phsstar/search"
	"github.com/kepford/phsstar/workerpool"
)

var totalExpanded atomic.Int64
var totalSolved atomic.Int64
var totalRuns atomic.Int64

func main() {
	boardsPath := flag.String("boards", "", "Path to a file of newline-separated board strings; defaults to one built-in board")
	workers := flag.Int("workers", 8, "Number of search workers")
	evaluators := flag.Int("evaluators", 2, "Number of model evaluators, round-robin assigned across workers")
	modelPath := flag.String("model", "", "ONNX model path; if empty, a deterministic reference predictor is used")
	batchSize := flag.Int("batch-size", 32, "Evaluator batch size override")
	batchTimeout := flag.Duration("batch-timeout", 0, "Evaluator batch window override")
	outDir := flag.String("out-dir", "data/traces", "Output directory for search trace parquet batches")
	maxGames := flag.Int64("max-games", 0, "If > 0, stop after this many searches complete")
	tui := flag.Bool("tui", false, "Show a terminal summary screen after the batch completes")
	flag.Parse()

	logger := slog.New(logging.NewPrettyJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	boards, err := loadBoards(*boardsPath)
	if err != nil {
		log.Fatalf("load boards: %v", err)
	}

	shape := inference.Shape{C: game.NumVisibleCellType, H: 16, W: 16}
	if len(boards) > 0 {
		if s, err := game.NewGameState(game.Params{"game_board_str": boards[0]}); err == nil {
			c, h, w := s.ObservationShape()
			shape = inference.Shape{C: c, H: h, W: w}
		}
	}

	pool, closePool, err := buildEvaluatorPool(*evaluators, *modelPath, shape, *workers, *batchSize, *batchTimeout)
	if err != nil {
		log.Fatalf("build evaluator pool: %v", err)
	}
	defer closePool()

	writer, err := tracestore.NewBatchWriter(*outDir)
	if err != nil {
		log.Fatalf("open trace writer: %v", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	numJobs := len(boards)
	if *maxGames > 0 {
		numJobs = int(*maxGames)
	}
	jobs := make([]string, numJobs)
	for i := range jobs {
		jobs[i] = boards[i%len(boards)]
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("progress",
					"runs", totalRuns.Load(),
					"solved", totalSolved.Load(),
					"expanded", totalExpanded.Load())
			}
		}
	}()

	results := workerpool.Run(ctx, *workers, jobs, func(boardStr string) tracestore.TraceRow {
		return runOne(pool, boardStr)
	})

	rows := make([]tracestore.TraceRow, len(results))
	copy(rows, results)
	if err := writer.WriteRows(rows); err != nil {
		logger.Error("write trace rows", "err", err)
	}
	outPath, n, err := writer.Finalize()
	if err != nil {
		logger.Error("finalize trace writer", "err", err)
	} else if n > 0 {
		logger.Info("trace batch written", "path", outPath, "rows", n)
	}

	logger.Info("done", "runs", totalRuns.Load(), "solved", totalSolved.Load())

	if *tui {
		// The dashboard is a thin viewer over the same counters; run it after
		// the batch completes so it can display a final summary.
		p := tea.NewProgram(newSummaryModel(totalRuns.Load(), totalSolved.Load(), totalExpanded.Load()))
		if _, err := p.Run(); err != nil {
			logger.Error("tui", "err", err)
		}
	}
}

func runOne(pool *inference.Pool, boardStr string) tracestore.TraceRow {
	start := time.Now()
	state, err := game.NewGameState(game.Params{"game_board_str": boardStr})
	if err != nil {
		return tracestore.TraceRow{BoardID: boardStr, Solved: false}
	}

	solved, actions, trace, err := search.Search(state, pool.Next())
	totalRuns.Add(1)
	totalExpanded.Add(int64(trace.Expanded))
	if solved {
		totalSolved.Add(1)
	}

	var sb strings.Builder
	for i, a := range actions {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(a)))
	}

	row := tracestore.TraceRow{
		BoardID:  boardStr,
		Solved:   solved,
		Expanded: int32(trace.Expanded),
		Actions:  sb.String(),
		Elapsed:  time.Since(start).Seconds(),
	}
	if err != nil {
		row.Evaluator = "error:" + err.Error()
	}
	return row
}

func buildEvaluatorPool(numEvaluators int, modelPath string, shape inference.Shape, workers, batchSize int, batchTimeout time.Duration) (*inference.Pool, func(), error) {
	if numEvaluators <= 0 {
		numEvaluators = 1
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	if batchTimeout <= 0 {
		batchTimeout = time.Millisecond
	}

	queueCapacity := workers * 4 / numEvaluators
	if queueCapacity < 1 {
		queueCapacity = 1
	}

	evaluators := make([]*inference.ModelEvaluator, numEvaluators)
	for i := 0; i < numEvaluators; i++ {
		var predictor inference.Predictor
		if modelPath == "" {
			predictor = refpredictor.New(shape)
		} else {
			p, err := onnxpredictor.New(onnxpredictor.Config{
				ModelPath:  modelPath,
				Shape:      shape,
				NumActions: game.NumActions,
			})
			if err != nil {
				return nil, nil, err
			}
			predictor = p
		}
		evaluators[i] = inference.NewModelEvaluator(predictor, queueCapacity, batchSize, batchTimeout)
	}

	pool := inference.NewPool(evaluators...)
	return pool, func() { _ = pool.Close() }, nil
}

func loadBoards(path string) ([]string, error) {
	if path == "" {
		return []string{game.DefaultParams()["game_board_str"].(string)}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var boards []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		boards = append(boards, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(boards) == 0 {
		return nil, os.ErrInvalid
	}
	return boards, nil
}

type summaryModel struct {
	runs, solved, expanded int64
}

func newSummaryModel(runs, solved, expanded int64) summaryModel {
	return summaryModel{runs: runs, solved: solved, expanded: expanded}
}

func (m summaryModel) Init() tea.Cmd { return nil }

func (m summaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		if k.String() == "q" || k.String() == "ctrl+c" || k.String() == "enter" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m summaryModel) View() string {
	var sb strings.Builder
	sb.WriteString("PHS* benchmark complete\n\n")
	sb.WriteString("Runs:     " + strconv.FormatInt(m.runs, 10) + "\n")
	sb.WriteString("Solved:   " + strconv.FormatInt(m.solved, 10) + "\n")
	sb.WriteString("Expanded: " + strconv.FormatInt(m.expanded, 10) + "\n\n")
	sb.WriteString("Press q to exit.\n")
	return sb.String()
}
