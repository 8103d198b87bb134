// nnspecgen lists, dumps and runs the grouped 2D convolution conformance cases, and generates the Go
// source file with their CreateModel_* and is_ignored_* functions.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/gomlx/nnconform/harness"
	"github.com/gomlx/nnconform/testgen"
	"github.com/gomlx/nnconform/testgen/groupedconv2d"
	"github.com/janpfeifer/must"
	"google.golang.org/protobuf/encoding/protojson"
	"k8s.io/klog/v2"
)

var (
	flagList        = flag.Bool("list", false, "List the names of the cases.")
	flagCase        = flag.String("case", "", "Restrict to the case with this name. By default all cases are used.")
	flagFormat      = flag.String("format", "text", `Output format of the models: "text", "json" or "go" (Go source with CreateModel_* functions).`)
	flagPackage     = flag.String("package", "groupedconv2d", "Package name of the generated Go source, with -format=go.")
	flagOutput      = flag.String("out", "", "Output file. Defaults to stdout.")
	flagRun         = flag.Bool("run", false, "Run the cases with the reference executor and report the results, instead of dumping the models.")
	flagConfig      = flag.String("config", "", "YAML file with the harness configuration (parallelism, skip, tolerances), used with -run.")
	flagParallelism = flag.Int("parallelism", 0, "If > 0, overrides the number of cases run in parallel, with -run.")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `nnspecgen builds the grouped 2D convolution conformance cases.

$ nnspecgen -list
$ nnspecgen -case=nhwc_relu_quant8 -format=json
$ nnspecgen -format=go -out=grouped_conv2d_fixtures.go
$ nnspecgen -run -config=harness.yaml

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	cases := groupedconv2d.Cases()
	if *flagCase != "" {
		c, found := groupedconv2d.Lookup(*flagCase)
		if !found {
			fmt.Fprintf(os.Stderr, "Unknown case %q, use -list to see the available cases.\n", *flagCase)
			os.Exit(1)
		}
		cases = []*testgen.Case{c}
	}

	var out io.Writer = os.Stdout
	if *flagOutput != "" {
		f := must.M1(os.Create(*flagOutput))
		defer func() { must.M(f.Close()) }()
		out = f
	}
	w := bufio.NewWriter(out)
	defer func() { must.M(w.Flush()) }()

	switch {
	case *flagList:
		for _, c := range cases {
			must.M1(fmt.Fprintln(w, c.Name))
		}
	case *flagRun:
		if !run(w, cases) {
			must.M(w.Flush())
			os.Exit(1)
		}
	default:
		dump(w, cases)
	}
}

// dump writes the models of the cases in the format given by -format.
func dump(w io.Writer, cases []*testgen.Case) {
	switch *flagFormat {
	case "go":
		must.M(testgen.EmitGo(w, *flagPackage, cases))
	case "text":
		for _, c := range cases {
			m := must.M1(c.Build())
			must.M1(fmt.Fprintf(w, "// %s\n", c.Name))
			must.M(m.Write(w))
			must.M1(fmt.Fprintln(w))
		}
	case "json":
		marshal := protojson.MarshalOptions{Multiline: true, Indent: "  "}
		for _, c := range cases {
			m := must.M1(c.Build())
			pb := must.M1(m.ToProto())
			must.M1(fmt.Fprintf(w, "%s\n", must.M1(marshal.Marshal(pb))))
		}
	default:
		fmt.Fprintf(os.Stderr, "Invalid -format=%q, valid values are \"text\", \"json\" or \"go\".\n", *flagFormat)
		os.Exit(1)
	}
}

// run executes the cases with the harness and reports whether all passed.
func run(w io.Writer, cases []*testgen.Case) bool {
	config := harness.DefaultConfig()
	if *flagConfig != "" {
		config = must.M1(harness.LoadConfig(*flagConfig))
	}
	if *flagParallelism > 0 {
		config.Parallelism = *flagParallelism
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	report, err := harness.New(config).Run(ctx, cases)
	if report != nil {
		for _, result := range report.Results {
			must.M1(fmt.Fprintln(w, result))
		}
		must.M1(fmt.Fprintln(w, report))
	}
	if err != nil {
		klog.Errorf("nnspecgen: %+v", err)
		return false
	}
	return report.NumFailed == 0
}
