// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// jitdump selects the kernel of a convolution descriptor and prints its dispatch geometry and
// its JIT constants.
//
// Usage:
//
//	jitdump [flags] descriptor.json
//
// The descriptor is the JSON form of params.Convolution. The engine is taken, in order, from
// -engine, from $KERNEL_SELECTOR_ENGINE, or from the descriptor itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/gomlx/kernelselector/pkg/kernels/kernel"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"github.com/gomlx/kernelselector/pkg/support/fsutil"

	// Register the convolution variants.
	_ "github.com/gomlx/kernelselector/pkg/kernels/convolution"
)

var (
	flagEngine = flag.String("engine", "",
		fmt.Sprintf("Engine configuration, see params.ParseEngineInfo. It overrides $%s and the engine of the descriptor.",
			params.KERNEL_SELECTOR_ENGINE))
	flagVariants = flag.String("variant", "",
		fmt.Sprintf("Comma separated list of kernel variants to consider. Default is all of %v.", kernel.Registered()))
	flagAutoTune = flag.Bool("autotune", false, "Enumerate the autotune configurations of each applicable variant.")
	flagIndex    = flag.Int("index", kernel.AutoTuneIndexUnset,
		"If >= 0, generate the kernel of each variant with the given autotune index, instead of selecting one.")
	flagDefines = flag.Bool("defines", false, "Print the \"#define\" lines of the constants, instead of a table.")
	flagStamp   = flag.Bool("stamp", false, "Stamp the output with a unique run id.")
	flagReorder = flag.Bool("reorder", false, "Allow reordering of the input and of the weights.")
	flagPlain   = flag.Bool("plain", false, "Print tables without colors or text attributes.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one descriptor file, got %d arguments. See 'jitdump -help'.", len(args))
		os.Exit(1)
	}

	if *flagPlain {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	conv := must.M1(loadDescriptor(args[0], *flagEngine))
	registry := must.M1(kernel.NewRegistry(variantNames(*flagVariants)...))
	opts := params.Options{AllowInputReordering: *flagReorder, AllowStaticInputReordering: *flagReorder}

	var kds []*kernel.KernelData
	switch {
	case *flagAutoTune:
		kds = must.M1(autoTune(registry, conv, opts))
	case *flagIndex >= 0:
		for _, v := range registry.Shortlist(conv) {
			kd := must.M1(registry.Tuned(v.Name(), conv, opts, *flagIndex))
			if kd != nil {
				kds = append(kds, kd)
			}
		}
	default:
		if kd := must.M1(registry.Select(conv, opts)); kd != nil {
			kds = append(kds, kd)
		}
	}
	if len(kds) == 0 {
		klog.Errorf("No kernel variant applicable to %q", conv.LayerID)
		os.Exit(1)
	}

	if *flagStamp {
		fmt.Printf("// jitdump run %s\n", uuid.NewString())
	}
	fmt.Println(titleStyle.Render("Kernels for " + conv.LayerID))
	fmt.Println(summaryTable(kds).Render())
	for _, kd := range kds {
		fmt.Println(titleStyle.Render(kd.EntryPoint))
		if *flagDefines {
			fmt.Println(kd.Constants.Render())
		} else {
			fmt.Println(constantsTable(kd).Render())
		}
	}
}

// loadDescriptor reads and checks a JSON convolution descriptor.
func loadDescriptor(path, engineConfig string) (*params.Convolution, error) {
	resolved, err := fsutil.ResolveFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "reading descriptor")
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "reading descriptor")
	}
	conv, err := params.ParseConvolution(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "descriptor %q", path)
	}
	if engineConfig != "" {
		conv.Engine, err = params.ParseEngineInfo(engineConfig)
	} else if _, found := os.LookupEnv(params.KERNEL_SELECTOR_ENGINE); found {
		conv.Engine, err = params.EngineInfoFromEnv()
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func variantNames(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// autoTune returns the kernels of all the autotune configurations of the shortlisted variants.
func autoTune(registry *kernel.Registry, conv *params.Convolution, opts params.Options) ([]*kernel.KernelData, error) {
	shortlist := registry.Shortlist(conv)
	bar := progressbar.NewOptions(len(shortlist),
		progressbar.OptionSetDescription("autotune"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	var kds []*kernel.KernelData
	for _, v := range shortlist {
		tuned, err := registry.AutoTune(v.Name(), conv, opts)
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("kernel %s: %d autotune configurations", v.Name(), len(tuned))
		kds = append(kds, tuned...)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return kds, nil
}
