package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/endorses/iaxcat/internal/pkg/capture"
	"github.com/endorses/iaxcat/internal/pkg/capture/pcaptypes"
	"github.com/endorses/iaxcat/internal/pkg/iax"
	"github.com/endorses/iaxcat/internal/pkg/logger"
	"github.com/endorses/iaxcat/internal/pkg/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var AnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze IAX2 traffic from a pcap file",
	Long: `Analyze IAX2 traffic from a pcap file: correlate packets into calls,
reconstruct timestamps and reassemble data-channel payloads.`,
	RunE: analyze,
}

var (
	readFile   string
	port       int
	passes     int
	payloadDir string
)

func init() {
	AnalyzeCmd.Flags().StringVarP(&readFile, "read-file", "r", "", "pcap file to analyze")
	AnalyzeCmd.Flags().IntVarP(&port, "port", "p", 0, "IAX2 port (default 4569)")
	AnalyzeCmd.Flags().IntVar(&passes, "passes", 1, "number of analysis passes over the file")
	AnalyzeCmd.Flags().StringVar(&payloadDir, "payload-dir", "", "directory to write reassembled data-channel messages to")
	AnalyzeCmd.MarkFlagRequired("read-file")
	viper.BindPFlag("iax.port", AnalyzeCmd.Flags().Lookup("port"))
}

func analyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	cleanup := signals.SetupHandler(ctx, cancel)
	defer cleanup()

	iaxPort := iax.GetConfig().Port
	if port > 0 {
		iaxPort = port
	}
	filter := fmt.Sprintf("udp port %d", iaxPort)

	if passes < 1 {
		passes = 1
	}

	session := iax.NewSession()
	logger.Info("Starting analysis",
		"session", session.ID.String(),
		"file", readFile,
		"filter", filter,
		"passes", passes)

	var before iax.SessionStats
	for pass := 1; pass <= passes; pass++ {
		iface := pcaptypes.CreateOfflineInterface(readFile)
		err := capture.Run(ctx, iface, filter, func(ch <-chan capture.PacketInfo) {
			runPass(ctx, session, ch, pass == 1)
		})
		if err != nil {
			return err
		}

		stats := session.Stats()
		logger.Info("Pass complete",
			"pass", pass,
			"packets", stats.Packets,
			"circuits", stats.Circuits,
			"calls", stats.Calls,
			"fragments", stats.Fragments)
		if pass > 1 && stats != before {
			logger.Error("Replay pass mutated session state",
				"pass", pass,
				"before", before,
				"after", stats)
		}
		before = stats
	}
	return nil
}

// runPass feeds one traversal of the capture into the session. Packet
// numbers restart at one each pass, so replay passes resolve to the
// annotations recorded by the first.
func runPass(ctx context.Context, session *iax.Session, ch <-chan capture.PacketInfo, print bool) {
	var num uint32
	for info := range ch {
		if ctx.Err() != nil {
			return
		}
		num++
		pkt, ok := iax.PacketFromCapture(num, info.Packet)
		if !ok {
			continue
		}
		ann := session.Analyze(pkt)
		if print {
			printAnnotation(pkt, ann)
		}
		if payloadDir != "" && len(ann.Reassembled) > 0 {
			writePayload(ann)
		}
	}
}

func printAnnotation(pkt *iax.Packet, ann *iax.Annotation) {
	if ann.Err != nil {
		fmt.Printf("#%d %s:%d -> %s:%d  %v\n",
			pkt.Num, pkt.SrcAddr, pkt.SrcPort, pkt.DstAddr, pkt.DstPort, ann.Err)
		return
	}

	f := ann.Frame
	desc := f.Type.String()
	if f.Kind == iax.KindFull && f.Type == iax.FrameIAXControl {
		desc = iax.IAXSubclassName(f.Subclass)
	} else if f.Kind != iax.KindFull {
		desc = f.Kind.String()
	}

	line := fmt.Sprintf("#%d call=%d dir=%s ts=%dms %s",
		pkt.Num, ann.Call, ann.Direction, ann.RelTimestamp, desc)
	if ann.Codec != iax.CodecNone {
		line += fmt.Sprintf(" codec=%s", ann.Codec)
	}
	if ann.FragmentID != 0 {
		line += fmt.Sprintf(" frag=%d", ann.FragmentID)
	}
	if len(ann.Reassembled) > 0 {
		line += fmt.Sprintf(" reassembled=%d bytes", len(ann.Reassembled))
	}
	for _, note := range ann.Notes {
		line += fmt.Sprintf(" [%s]", note)
	}
	fmt.Println(line)
}

func writePayload(ann *iax.Annotation) {
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		logger.Error("Failed to create payload directory",
			"dir", payloadDir,
			"error", err)
		return
	}
	name := fmt.Sprintf("call_%d_%s_frag_%d.bin", ann.Call, ann.Direction, ann.FragmentID)
	path := filepath.Join(payloadDir, name)
	if err := os.WriteFile(path, ann.Reassembled, 0o644); err != nil {
		logger.Error("Failed to write reassembled payload",
			"path", path,
			"error", err)
	}
}
