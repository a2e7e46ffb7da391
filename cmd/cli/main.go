package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/himanishpuri/landmark/internal/service"
	"github.com/himanishpuri/landmark/internal/storage"
	"github.com/himanishpuri/landmark/pkg/landmark"
	"github.com/himanishpuri/landmark/pkg/logger"
)

// Global flags
var (
	dbPath     string
	tempDir    string
	sampleRate int
	windowSize int
	hopSize    int
	jobs       int
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func registerGlobalFlags() {
	def := landmark.DefaultConfig()
	flag.StringVar(&dbPath, "db", getEnvOrDefault("LANDMARK_DB_PATH", storage.DefaultDBFile), "SQLite file or PostgreSQL DSN")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("LANDMARK_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", getEnvIntOrDefault("LANDMARK_SAMPLE_RATE", def.SampleRate), "Audio sample rate for processing")
	flag.IntVar(&windowSize, "window", def.WindowSize, "STFT window size in samples")
	flag.IntVar(&hopSize, "hop", def.HopSize, "STFT hop size in samples")
	flag.IntVar(&jobs, "jobs", 4, "Files fingerprinted in parallel")
	flag.Usage = printUsage
}

// createService creates a fingerprint service with the global options
func createService() (*service.FingerprintService, error) {
	return service.NewFingerprintService(
		service.WithDBPath(dbPath),
		service.WithTempDir(tempDir),
		service.WithJobs(jobs),
		service.WithLandmarkOptions(
			landmark.WithSampleRate(sampleRate),
			landmark.WithWindowSize(windowSize),
			landmark.WithHopSize(hopSize),
		),
	)
}

func mustService() *service.FingerprintService {
	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		logger.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return svc
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	registerGlobalFlags()
	flag.Parse()

	log := logger.GetLogger()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "fingerprint":
		handleFingerprint(args)
	case "add":
		handleAdd(args)
	case "list":
		handleList()
	case "show":
		handleShow(args)
	case "delete":
		handleDelete(args)
	case "spectrogram":
		handleSpectrogram(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// parseArgs parses fs allowing flags before and after positional arguments,
// and returns the positional ones.
func parseArgs(fs *flag.FlagSet, args []string) []string {
	var positional []string
	for {
		fs.Parse(args)
		args = fs.Args()
		if len(args) == 0 {
			return positional
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func handleFingerprint(args []string) {
	log := logger.GetLogger()

	cmd := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	verbose := cmd.Bool("verbose", false, "Print every hash with its anchor frame and log per file details")
	paths := parseArgs(cmd, args)

	if len(paths) == 0 {
		fmt.Println("Usage: landmark fingerprint <audio_file>... [--verbose]")
		os.Exit(1)
	}

	// a lower LOG_LEVEL wins
	if *verbose && log.Level() > logger.DEBUG {
		log.SetLevel(logger.DEBUG)
	}

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	results, err := svc.FingerprintFiles(ctx, paths)
	if err != nil {
		fmt.Printf("\n❌ Failed to fingerprint: %v\n", err)
		log.Errorf("FingerprintFiles failed: %v", err)
		os.Exit(1)
	}

	total := 0
	for _, tf := range results {
		sum := tf.Summary
		total += sum.Hashes
		fmt.Printf("\n🎵 %s\n", tf.Path)
		fmt.Printf("   Duration: %s\n", formatDuration(tf.DurationMs))
		fmt.Printf("   Frames:   %s total, %s retained, %s silent\n",
			humanize.Comma(int64(sum.TotalFrames)),
			humanize.Comma(int64(sum.RetainedFrames)),
			humanize.Comma(int64(sum.DroppedFrames)))
		fmt.Printf("   Hashes:   %s in %s batches\n",
			humanize.Comma(int64(sum.Hashes)), humanize.Comma(int64(sum.Batches)))

		if *verbose {
			for _, b := range tf.Batches {
				for _, h := range b.Hashes {
					fmt.Printf("   %6d  %s\n", b.AnchorIndex, h)
				}
			}
		}
	}

	fmt.Printf("\n✅ %s hashes from %d file(s) in %s\n",
		humanize.Comma(int64(total)), len(results), time.Since(start).Round(time.Millisecond))
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	cmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := cmd.String("title", "", "Track title (defaults to the file name)")
	positional := parseArgs(cmd, args)

	if len(positional) != 1 {
		fmt.Println("Usage: landmark add <audio_file> [--title <title>]")
		os.Exit(1)
	}
	audioPath := positional[0]

	svc := mustService()
	defer svc.Close()

	fmt.Println("🎵 Processing audio file...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	track, err := svc.AddTrack(ctx, audioPath, *title)
	if err != nil {
		fmt.Printf("\n❌ Failed to add track: %v\n", err)
		log.Errorf("AddTrack failed: %v", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Successfully added track to database!")
	printTrack(track)
}

func handleList() {
	log := logger.GetLogger()

	svc := mustService()
	defer svc.Close()

	tracks, err := svc.ListTracks()
	if err != nil {
		fmt.Printf("❌ Failed to list tracks: %v\n", err)
		log.Errorf("ListTracks failed: %v", err)
		os.Exit(1)
	}

	if len(tracks) == 0 {
		fmt.Println("\n📭 No tracks in database")
		return
	}

	fmt.Printf("\n📚 Found %d track(s):\n\n", len(tracks))
	for i, track := range tracks {
		fmt.Printf("%d. \"%s\" (ID: %s)\n", i+1, track.Title, track.ID)
		fmt.Printf("   Duration: %s | Hashes: %s | Added %s\n",
			formatDuration(track.DurationMs),
			humanize.Comma(int64(track.HashCount)),
			humanize.Time(track.CreatedAt))
		fmt.Println()
	}
}

func handleShow(args []string) {
	log := logger.GetLogger()

	cmd := flag.NewFlagSet("show", flag.ExitOnError)
	hashes := cmd.Bool("hashes", false, "Print the stored hashes")
	positional := parseArgs(cmd, args)

	if len(positional) != 1 {
		fmt.Println("Usage: landmark show <track_id> [--hashes]")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	track, err := svc.GetTrack(positional[0])
	if err != nil {
		reportLookup(positional[0], err)
	}
	printTrack(track)

	if !*hashes {
		return
	}
	rows, err := svc.TrackHashes(track.ID)
	if err != nil {
		fmt.Printf("❌ Failed to load hashes: %v\n", err)
		log.Errorf("TrackHashes failed: %v", err)
		os.Exit(1)
	}
	fmt.Println()
	for _, r := range rows {
		fmt.Printf("   %8dms  %s\n", r.AnchorTimeMs(track), landmark.Hash(r.Hash))
	}
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: landmark delete <track_id>")
		os.Exit(1)
	}
	trackID := args[0]

	svc := mustService()
	defer svc.Close()

	// Get track info before deletion
	track, err := svc.GetTrack(trackID)
	if err != nil {
		reportLookup(trackID, err)
	}

	if err := svc.DeleteTrack(trackID); err != nil {
		fmt.Printf("❌ Failed to delete track: %v\n", err)
		log.Errorf("DeleteTrack failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Successfully deleted track:\n")
	fmt.Printf("   ID:     %s\n", track.ID)
	fmt.Printf("   Title:  %s\n", track.Title)
	fmt.Printf("   Hashes: %s\n", humanize.Comma(int64(track.HashCount)))
	log.Infof("Deleted track %s ('%s')", track.ID, track.Title)
}

func handleSpectrogram(args []string) {
	log := logger.GetLogger()

	cmd := flag.NewFlagSet("spectrogram", flag.ExitOnError)
	out := cmd.String("out", "", "Output PNG path (defaults to <audio_file>.png)")
	residual := cmd.Bool("residual", false, "Draw the residual instead of the spectrum")
	positional := parseArgs(cmd, args)

	if len(positional) != 1 {
		fmt.Println("Usage: landmark spectrogram <audio_file> [--out <png>] [--residual]")
		os.Exit(1)
	}
	audioPath := positional[0]
	if *out == "" {
		*out = audioPath + ".png"
	}

	svc := mustService()
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sum, err := svc.RenderSpectrogram(ctx, audioPath, *out, *residual)
	if err != nil {
		fmt.Printf("\n❌ Failed to render spectrogram: %v\n", err)
		log.Errorf("RenderSpectrogram failed: %v", err)
		os.Exit(1)
	}

	size := ""
	if info, err := os.Stat(*out); err == nil {
		size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
	}
	fmt.Printf("\n✅ Wrote %s%s\n", *out, size)
	fmt.Printf("   %s frames, %s retained, %s hashes\n",
		humanize.Comma(int64(sum.TotalFrames)),
		humanize.Comma(int64(sum.RetainedFrames)),
		humanize.Comma(int64(sum.Hashes)))
}

func reportLookup(trackID string, err error) {
	if errors.Is(err, storage.ErrTrackNotFound) {
		fmt.Printf("❌ Track not found (ID: %s)\n", trackID)
		logger.Warnf("Track %s not found", trackID)
	} else {
		fmt.Printf("❌ Failed to load track: %v\n", err)
		logger.Errorf("GetTrack failed: %v", err)
	}
	os.Exit(1)
}

func printTrack(track *storage.Track) {
	fmt.Printf("   ID:       %s\n", track.ID)
	fmt.Printf("   Title:    %s\n", track.Title)
	fmt.Printf("   Path:     %s\n", track.Path)
	fmt.Printf("   Duration: %s\n", formatDuration(track.DurationMs))
	fmt.Printf("   Analysis: %d Hz, window %d, hop %d\n", track.SampleRate, track.WindowSize, track.HopSize)
	fmt.Printf("   Frames:   %s\n", humanize.Comma(int64(track.TotalFrames)))
	fmt.Printf("   Hashes:   %s\n", humanize.Comma(int64(track.HashCount)))
	fmt.Printf("   Added:    %s\n", humanize.Time(track.CreatedAt))
}

func formatDuration(ms int) string {
	s := ms / 1000
	return fmt.Sprintf("%d:%02d.%03d", s/60, s%60, ms%1000)
}

func printUsage() {
	fmt.Println("landmark - audio landmark fingerprinting CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        SQLite file or PostgreSQL DSN (env: LANDMARK_DB_PATH, default: landmark.sqlite3)")
	fmt.Println("  --temp <dir>       Temporary directory for audio conversion (env: LANDMARK_TEMP_DIR)")
	fmt.Println("  --rate <hz>        Audio sample rate (env: LANDMARK_SAMPLE_RATE, default: 11025)")
	fmt.Println("  --window <n>       STFT window size (default: 512)")
	fmt.Println("  --hop <n>          STFT hop size (default: 256)")
	fmt.Println("  --jobs <n>         Files fingerprinted in parallel (default: 4)")
	fmt.Println("\nUsage:")
	fmt.Println("  landmark [global-options] fingerprint <audio_file>... [--verbose]")
	fmt.Println("  landmark [global-options] add <audio_file> [--title <title>]")
	fmt.Println("  landmark [global-options] list")
	fmt.Println("  landmark [global-options] show <track_id> [--hashes]")
	fmt.Println("  landmark [global-options] delete <track_id>")
	fmt.Println("  landmark [global-options] spectrogram <audio_file> [--out <png>] [--residual]")
	fmt.Println("\nLOG_LEVEL selects DEBUG, INFO, WARN or ERROR output on stderr.")
	fmt.Println("\nExamples:")
	fmt.Println("  landmark fingerprint --verbose song.wav")
	fmt.Println("  landmark --db mydb.sqlite3 add song.mp3 --title \"Song\"")
	fmt.Println("  landmark --rate 22050 --window 1024 --hop 512 spectrogram song.mp3 --out song.png")
}
