package audit

/*
Файл trail.go реализует журнал изменений (Change Log) — движок для сбора
и персистентности истории правок CRM.

Ключевые особенности архитектуры:
- Non-blocking Logging: Использование неблокирующих каналов для передачи событий
  из Hot Path хендлеров. Задержки записи в БД не влияют на Response Time.
- Batching & Efficiency: Накопление событий в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: Реализован механизм полной вычитки буфера
  при остановке сервиса. С помощью sync.WaitGroup и закрытия каналов гарантируется
  Final Flush — отсутствие потерь данных при перезагрузке системы.
- Reliability: Устойчивость к кратковременным сбоям БД за счет изоляции воркера
  и использования контекста Background для завершающих операций.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []ChangeEvent) error
}

type Recorder interface {
	Record(event ChangeEvent)
}

type Trail struct {
	ch     chan ChangeEvent // Буфер для асинхронности
	repo   StorageInterface // Интерфейс для Postgres/ClickHouse
	logger *zap.Logger
	wg     sync.WaitGroup
	// Защита на случай, если кто-то вызовет Record после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)

	batchSize     int
	flushInterval time.Duration
}

func NewTrail(repo StorageInterface, bufferSize int, flushInterval time.Duration, logger *zap.Logger) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:            make(chan ChangeEvent, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "changelog")),
		batchSize:     100,
		flushInterval: flushInterval,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern). Завершение горутины происходит исключительно через закрытие входного канала.
	t.logger.Info("stopping change log: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("change log stopped gracefully")
}

func (t *Trail) Record(event ChangeEvent) {
	// Убеждаемся, что таймстемп всегда проставлен
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("change event dropped: change log is stopping", zap.String("id", event.ID))
		return
	}

	// используем стратегию Load Shedding (сброс нагрузки)
	select {
	case t.ch <- event:
	default:
		// Если канал переполнен (Backpressure), пишем в стандартный логгер
		// Чтобы не терять данные в критических ситуациях
		t.logger.Error("changelog_buffer_overflow",
			zap.String("workspace_id", event.WorkspaceID),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]ChangeEvent, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background, так как основной контекст может быть уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("change log flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop() — это самодостаточный сигнал для завершения:
				// воркер сначала вычитает остатки очереди, потом получит ok == false,
				// вызовет финальный flush() и выйдет.
				flush()
				t.logger.Info("change log worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
