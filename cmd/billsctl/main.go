package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	svc "github.com/joseph-ayodele/bills-assistant/internal/server"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
	"github.com/joseph-ayodele/bills-assistant/internal/utils"
)

const usage = `usage: billsctl <command> [flags]

commands:
  ask          -user ID "question"
  report       -user ID -template MONTHLY_SUMMARY|CATEGORY_BREAKDOWN|RECENT_BILLS [-query TEXT]
  ingest       -user ID -file bill.json
  ingest-text  -user ID -file bill.txt   (use - for stdin)
  export       -user ID [-query TEXT | -from YYYY-MM-DD -to YYYY-MM-DD] -out bills.xlsx
  resolve      [-now YYYY-MM-DD] [-candidate JSON] "time phrase"   (runs locally)
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	if len(os.Args) < 2 {
		printError(usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "ask":
		err = runAsk(args)
	case "report":
		err = runReport(args)
	case "ingest":
		err = runIngest(args)
	case "ingest-text":
		err = runIngestText(args)
	case "export":
		err = runExport(args)
	case "resolve":
		err = runResolve(args, os.Stdout)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		printError("unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

type remote struct {
	addr    string
	user    string
	timeout time.Duration
}

func remoteFlags(fs *flag.FlagSet) *remote {
	r := &remote{}
	fs.StringVar(&r.addr, "addr", envOr("BILLS_ADDR", "localhost:8080"), "billsd gRPC address")
	fs.StringVar(&r.user, "user", os.Getenv("BILLS_USER"), "user id (required)")
	fs.DurationVar(&r.timeout, "timeout", 2*time.Minute, "request timeout")
	return r
}

func (r *remote) call(method func(*svc.Client, context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error), req map[string]any) (*structpb.Struct, error) {
	if strings.TrimSpace(r.user) == "" {
		return nil, fmt.Errorf("-user is required")
	}
	req["user_id"] = r.user
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(r.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", r.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, svc.RequestIDHeader, uuid.NewString())
	return method(svc.NewClient(conn), ctx, in)
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	r := remoteFlags(fs)
	_ = fs.Parse(args)
	query := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("a question is required")
	}
	out, err := r.call((*svc.Client).Route, map[string]any{"query": query})
	if err != nil {
		return err
	}
	if answer := out.GetFields()["answer"].GetStringValue(); answer != "" {
		fmt.Println(answer)
		return nil
	}
	return printJSON(os.Stdout, out.AsMap())
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	r := remoteFlags(fs)
	template := fs.String("template", "MONTHLY_SUMMARY", "report template")
	query := fs.String("query", "", "optional text naming the time window")
	_ = fs.Parse(args)

	out, err := r.call((*svc.Client).Report, map[string]any{"template": *template, "query": *query})
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, out.AsMap())
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	r := remoteFlags(fs)
	file := fs.String("file", "", "bill JSON file (required, - for stdin)")
	_ = fs.Parse(args)

	data, err := readInput(*file)
	if err != nil {
		return err
	}
	var bill map[string]any
	if err := json.Unmarshal(data, &bill); err != nil {
		return fmt.Errorf("parse %s: %w", *file, err)
	}
	out, err := r.call((*svc.Client).Ingest, bill)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, out.AsMap())
}

func runIngestText(args []string) error {
	fs := flag.NewFlagSet("ingest-text", flag.ExitOnError)
	r := remoteFlags(fs)
	file := fs.String("file", "-", "bill text file (- for stdin)")
	_ = fs.Parse(args)

	data, err := readInput(*file)
	if err != nil {
		return err
	}
	out, err := r.call((*svc.Client).IngestText, map[string]any{"text": string(data)})
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, out.AsMap())
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	r := remoteFlags(fs)
	query := fs.String("query", "", "text naming the time window")
	from := fs.String("from", "", "from date YYYY-MM-DD")
	to := fs.String("to", "", "to date YYYY-MM-DD")
	outPath := fs.String("out", "bills.xlsx", "output XLSX path")
	_ = fs.Parse(args)

	out, err := r.call((*svc.Client).Export, map[string]any{"query": *query, "from_date": *from, "to_date": *to})
	if err != nil {
		return err
	}
	xlsx, err := base64.StdEncoding.DecodeString(out.GetFields()["xlsx"].GetStringValue())
	if err != nil {
		return fmt.Errorf("decode workbook: %w", err)
	}
	if err := os.WriteFile(*outPath, xlsx, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", *outPath, len(xlsx))
	return nil
}

// runResolve resolves a time phrase or an explicit candidate against a fixed clock,
// without a server or model.
func runResolve(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	nowStr := fs.String("now", "", "reference date YYYY-MM-DD (default today)")
	candidate := fs.String("candidate", "", "time range candidate JSON instead of a phrase")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now().UTC()
	if *nowStr != "" {
		d, err := utils.ParseYMD(*nowStr)
		if err != nil {
			return fmt.Errorf("invalid -now date, use YYYY-MM-DD: %w", err)
		}
		now = d
	}

	var tr *temporal.TimeRange
	if *candidate != "" {
		var err error
		if tr, err = temporal.DecodeCandidate([]byte(*candidate)); err != nil {
			return err
		}
	} else {
		phrase := strings.Join(fs.Args(), " ")
		if tr = temporal.Fallback(phrase); tr == nil {
			_, err := fmt.Fprintf(w, "no time range recognised in %q\n", phrase)
			return err
		}
	}

	win, err := temporal.NewResolver(func() time.Time { return now }).Resolve(tr)
	if err != nil {
		return err
	}
	return printJSON(w, map[string]any{
		"candidate": tr.Candidate(),
		"window":    windowValue(win),
	})
}

func windowValue(w *temporal.Window) any {
	if w == nil {
		return nil
	}
	return utils.NormalizeRow(w.Map())
}

func readInput(path string) ([]byte, error) {
	switch path {
	case "":
		return nil, fmt.Errorf("-file is required")
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(path)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
