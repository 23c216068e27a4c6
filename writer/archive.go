// Package writer persists alerted notices to S3 as parquet files for offline
// analysis. Archiving is strictly optional: the alert path never waits on it
// and an upload failure costs nothing but the archived copy.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "tenderflow/config"
	"tenderflow/logger"
	"tenderflow/models"
)

// LotRow is the flattened per-lot parquet schema. One alerted notice produces
// one row per converted lot.
type LotRow struct {
	PublicationID   string  `parquet:"name=publication_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PublicationDate string  `parquet:"name=publication_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	BuyerName       string  `parquet:"name=buyer_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	BuyerCountry    string  `parquet:"name=buyer_country, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title           string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	LotID           string  `parquet:"name=lot_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TenderValue     float64 `parquet:"name=tender_value, type=DOUBLE"`
	TenderCurrency  string  `parquet:"name=tender_currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	EURValue        float64 `parquet:"name=eur_value, type=DOUBLE"`
	WinnerName      string  `parquet:"name=winner_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	WinnerCountry   string  `parquet:"name=winner_country, type=BYTE_ARRAY, convertedtype=UTF8"`
	NoticeTotal     float64 `parquet:"name=notice_total_eur, type=DOUBLE"`
	ArchivedAt      int64   `parquet:"name=archived_at, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface over a byte buffer so
// files can be assembled in memory before the single PutObject call.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage never needs repositioning.
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// ArchiveWriter buffers alerted notices and periodically flushes them to S3
// as date-partitioned parquet files.
type ArchiveWriter struct {
	config      *appconfig.Config
	archiveChan <-chan models.HighValueNotice
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      []models.HighValueNotice
	flushTicker *time.Ticker
	now         func() time.Time
}

// NewArchiveWriter builds the writer and validates AWS credentials up front
// so a misconfigured archive fails at startup rather than at first flush.
func NewArchiveWriter(cfg *appconfig.Config, archiveChan <-chan models.HighValueNotice) (*ArchiveWriter, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("archive writer initialized")

	return &ArchiveWriter{
		config:      cfg,
		archiveChan: archiveChan,
		s3Client:    s3Client,
		wg:          &sync.WaitGroup{},
		log:         log,
		now:         time.Now,
	}, nil
}

func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting archive writer")

	interval := w.config.Storage.S3.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	w.flushTicker = time.NewTicker(interval)

	w.wg.Add(1)
	go w.worker()

	return nil
}

func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("archive_writer").Info("stopping archive writer")
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *ArchiveWriter) worker() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer")

	for {
		select {
		case <-w.ctx.Done():
			w.flush("shutdown")
			log.Info("worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flush("interval")
		case notice, ok := <-w.archiveChan:
			if !ok {
				w.flush("channel closed")
				log.Info("archive channel closed, worker stopping")
				return
			}
			w.mu.Lock()
			w.buffer = append(w.buffer, notice)
			w.mu.Unlock()
		}
	}
}

func (w *ArchiveWriter) flush(reason string) {
	w.mu.Lock()
	notices := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(notices) == 0 {
		return
	}

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"notices": len(notices),
		"reason":  reason,
	})
	log.Info("flushing archive buffer")

	rows := flattenNotices(notices, w.now().UnixMilli())
	key := w.objectKey(w.now())
	log = log.WithFields(logger.Fields{"s3_key": key, "rows": len(rows)})

	data, err := w.createParquetFile(rows)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file, batch dropped")
		return
	}

	if err := w.upload(key, data); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket}).
			Error("failed to upload to S3, batch dropped")
		return
	}

	log.WithFields(logger.Fields{"file_size": len(data)}).Info("archive batch uploaded")
}

// flattenNotices expands each notice into one row per converted lot.
func flattenNotices(notices []models.HighValueNotice, archivedAt int64) []LotRow {
	var rows []LotRow
	for _, n := range notices {
		for _, lot := range n.Lots {
			var tenderValue float64
			if lot.TenderValue != nil {
				tenderValue = *lot.TenderValue
			}
			rows = append(rows, LotRow{
				PublicationID:   n.PublicationID,
				PublicationDate: n.PublicationDate,
				BuyerName:       n.BuyerName,
				BuyerCountry:    n.BuyerCountry,
				Title:           n.Title,
				LotID:           lot.LotID,
				TenderValue:     tenderValue,
				TenderCurrency:  lot.TenderCurrency,
				EURValue:        lot.EURValue,
				WinnerName:      lot.WinnerName,
				WinnerCountry:   lot.WinnerCountry,
				NoticeTotal:     n.TotalValue,
				ArchivedAt:      archivedAt,
			})
		}
	}
	return rows
}

// objectKey builds the date-partitioned S3 key for one flush.
func (w *ArchiveWriter) objectKey(ts time.Time) string {
	prefix := w.config.Storage.S3.Prefix
	if prefix == "" {
		prefix = "notices"
	}
	return path.Join(
		prefix,
		fmt.Sprintf("date=%s", ts.UTC().Format("2006-01-02")),
		fmt.Sprintf("%s_%s.parquet", ts.UTC().Format("20060102150405"), uuid.New().String()),
	)
}

func (w *ArchiveWriter) createParquetFile(rows []LotRow) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := pqwriter.NewParquetWriter(fw, new(LotRow), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (w *ArchiveWriter) upload(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":       "parquet",
			"tenderflow-version": w.config.Tenderflow.Version,
		},
	}

	// Outlives the run context so a shutdown flush still lands.
	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}
