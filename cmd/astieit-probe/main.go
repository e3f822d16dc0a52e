package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/asticode/go-astieit"
	"github.com/asticode/go-astikit"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flags
var (
	ctx, cancel     = context.WithCancel(context.Background())
	configPath      = flag.String("c", "", "the yaml configuration path")
	cpuProfiling    = flag.Bool("cp", false, "if yes, cpu profiling is enabled")
	format          = flag.String("f", "", "the format (json, text)")
	inputPath       = flag.String("i", "", "the input path")
	memoryProfiling = flag.Bool("mp", false, "if yes, memory profiling is enabled")
	tableTypes      = astikit.NewFlagStrings()
)

func main() {
	// Init
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s <sections|events|report>:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Var(tableTypes, "t", "the table types whitelist (pf, schedule, actual, other)")
	cmd := astikit.FlagCmd()
	flag.Parse()

	// Handle signals
	handleSignals()

	// Start profiling
	if *cpuProfiling {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	} else if *memoryProfiling {
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	}

	// Load configuration
	c := newConfig()
	if *configPath != "" {
		var err error
		if c, err = loadConfig(*configPath); err != nil {
			log.Fatal(fmt.Errorf("main: loading configuration failed: %w", err))
		}
	}

	// Collect
	r, err := collect(c)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(fmt.Errorf("main: collecting sections failed: %w", err))
	}

	// Filter
	var ss []*astieit.EITSection
	for _, s := range r.Sections() {
		if keepTableID(s.TableID) {
			ss = append(ss, s)
		}
	}

	// Switch on command
	switch cmd {
	case "events":
		err = printEvents(ss)
	case "report":
		n := astieit.NewReportNode("EITs")
		for _, s := range ss {
			n.AddChild(astieit.RenderEITSection(s))
		}
		err = printReport(n)
	default:
		err = printSections(ss)
	}
	if err != nil {
		log.Fatal(fmt.Errorf("main: printing failed: %w", err))
	}
}

func handleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch)
	go func() {
		for s := range ch {
			if s != syscall.SIGURG {
				log.Printf("Received signal %s\n", s)
			}
			switch s {
			case syscall.SIGABRT, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM:
				cancel()
				return
			}
		}
	}()
}

func collect(c Config) (r *astieit.EITRegistry, err error) {
	// Validate input
	if len(*inputPath) <= 0 {
		err = errors.New("use -i to indicate an input path")
		return
	}

	// Open file
	var f *os.File
	if f, err = os.Open(*inputPath); err != nil {
		err = fmt.Errorf("main: opening %s failed: %w", *inputPath, err)
		return
	}
	defer f.Close()

	// Metrics
	m := astieit.NewMetrics(c.Metrics.Namespace)
	if c.Metrics.ListenAddress != "" {
		reg := prometheus.NewRegistry()
		if err = m.Register(reg); err != nil {
			err = fmt.Errorf("main: registering metrics failed: %w", err)
			return
		}
		serveMetrics(c.Metrics.ListenAddress, reg)
	}

	// Create registry
	vp, _ := astieit.ParseVersionPolicy(c.VersionPolicy)
	r = astieit.NewEITRegistry(
		astieit.EITRegistryOptLogger(log.Default()),
		astieit.EITRegistryOptMetrics(m),
		astieit.EITRegistryOptVersionPolicy(vp),
	)

	// Create demuxer
	dmxOpts := []func(*astieit.Demuxer){
		astieit.DemuxerOptLogger(log.Default()),
		astieit.DemuxerOptPacketSize(c.PacketSize),
		astieit.DemuxerOptPIDs(c.PIDs...),
	}
	if !*c.VerifyCRC {
		dmxOpts = append(dmxOpts, astieit.DemuxerOptSkipCRC32())
	}
	dmx := astieit.NewDemuxer(ctx, f, dmxOpts...)

	// Collect
	log.Println("Fetching sections...")
	if err = astieit.NewCollector(r,
		astieit.CollectorOptLogger(log.Default()),
		astieit.CollectorOptMetrics(m),
		astieit.CollectorOptWorkers(c.Workers),
	).RunDemuxer(ctx, dmx); err != nil {
		err = fmt.Errorf("main: running collector failed: %w", err)
		return
	}
	log.Printf("%d sections collected\n", r.Len())
	return
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.Printf("Serving metrics at %s/metrics\n", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Println(fmt.Errorf("main: serving metrics failed: %w", err))
		}
	}()
}

func keepTableID(t astieit.TableID) bool {
	if len(tableTypes.Map) == 0 {
		return true
	}
	if _, ok := tableTypes.Map["pf"]; ok && t.IsPresentFollowing() {
		return true
	}
	if _, ok := tableTypes.Map["schedule"]; ok && t.IsSchedule() {
		return true
	}
	if _, ok := tableTypes.Map["actual"]; ok && t.IsActual() {
		return true
	}
	if _, ok := tableTypes.Map["other"]; ok && !t.IsActual() {
		return true
	}
	return false
}

// Section is the json form of a section summary
type Section struct {
	Anomalies         int    `json:"anomalies,omitempty"`
	Events            int    `json:"events"`
	SectionNumber     uint8  `json:"section_number"`
	ServiceID         uint16 `json:"service_id"`
	TableID           uint8  `json:"table_id"`
	TableType         string `json:"table_type"`
	TransportStreamID uint16 `json:"transport_stream_id"`
	VersionNumber     uint8  `json:"version_number"`
}

func newSection(s *astieit.EITSection) Section {
	return Section{
		Anomalies:         len(s.Anomalies),
		Events:            len(s.Events),
		SectionNumber:     s.SectionNumber,
		ServiceID:         s.ServiceID,
		TableID:           uint8(s.TableID),
		TableType:         s.TableID.String(),
		TransportStreamID: s.TransportStreamID,
		VersionNumber:     s.VersionNumber,
	}
}

// String implements the Stringer interface
func (s Section) String() string {
	return fmt.Sprintf("[0x%x] %s | ts: %d | service: %d | section: %d | version: %d | events: %d | anomalies: %d", s.TableID, s.TableType, s.TransportStreamID, s.ServiceID, s.SectionNumber, s.VersionNumber, s.Events, s.Anomalies)
}

func printSections(ss []*astieit.EITSection) error {
	var os []Section
	for _, s := range ss {
		os = append(os, newSection(s))
	}
	if *format == "json" {
		return printJSON(os)
	}
	fmt.Println("Sections are:")
	for _, s := range os {
		fmt.Printf("* %s\n", s)
	}
	return nil
}

func printEvents(ss []*astieit.EITSection) error {
	if *format == "json" {
		n := astieit.NewReportNode("Events")
		for _, s := range ss {
			for _, c := range astieit.RenderEITSection(s).Children {
				n.AddChild(c)
			}
		}
		return printJSON(n)
	}
	for _, s := range ss {
		fmt.Printf("* %s\n", newSection(s))
		fmt.Println(eventsToString(s.Events))
	}
	return nil
}

func printReport(n *astieit.ReportNode) error {
	if *format == "json" {
		return printJSON(n)
	}
	fmt.Print(reportToString(n, 0))
	return nil
}

func printJSON(v interface{}) error {
	var e = json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	if err := e.Encode(v); err != nil {
		return fmt.Errorf("main: json encoding to stdout failed: %w", err)
	}
	return nil
}

func eventsToString(es []*astieit.EITEvent) string {
	var os []string
	for idx, e := range es {
		os = append(os, eventToString(idx, e))
	}
	return strings.Join(os, "\n")
}

func eventToString(idx int, e *astieit.EITEvent) (s string) {
	start := "undefined"
	if !e.StartTimeUndefined {
		start = e.StartTime.Format("2006-01-02 15:04:05")
	}
	s = fmt.Sprintf("  - #%d | id: %d | start: %s | duration: %s | status: %s", idx+1, e.EventID, start, e.Duration, astieit.RunningStatusString(e.RunningStatus))
	for _, d := range e.Descriptors {
		if a, ok := d.Report().Attribute("event_name"); ok {
			s += fmt.Sprintf(" | name: %s", a.Text)
		}
	}
	return
}

func reportToString(n *astieit.ReportNode, depth int) (s string) {
	indent := strings.Repeat("  ", depth)
	s = fmt.Sprintf("%s%s\n", indent, n.Name)
	for _, a := range n.Attributes {
		s += fmt.Sprintf("%s  %s: %s\n", indent, a.Name, a.Text)
	}
	for _, c := range n.Children {
		s += reportToString(c, depth+1)
	}
	return
}
