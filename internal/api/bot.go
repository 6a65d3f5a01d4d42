package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	app "defect-console/internal/application"
	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

const (
	msgStart = `👋 Привет! Я консоль контроля дефектов печатных плат.

📸 Отправьте фото платы, и я найду на нём дефекты.

📋 Команды:
/check — проверить одну плату
/run — запустить пакет или живой режим
/live — включить камеру и живой режим
/pause — пауза / продолжить
/stop — остановить запуск
/status — состояние сессии
/export — сохранить результаты
/subscribe, /unsubscribe — уведомления сессии
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как пользоваться консолью:

1️⃣ Отправьте /check и фото платы
2️⃣ Консоль отправит его на сервер детекции
3️⃣ Вы получите список дефектов и фото с подсветкой

💡 Пороги: /settings <iou> <conf> [модель], например /settings 0.45 0.4 vote2
Модели: primary, vote2, vote4

📋 Команды:
/check — начать проверку
/status — состояние сессии
/cancel — отменить операцию`

	msgAwaitingPhoto   = "📸 Отправьте фото платы для проверки на дефекты."
	msgCancelled       = "❌ Операция отменена. Отправьте /check для новой проверки."
	msgSendPhoto       = "📸 Пожалуйста, отправьте фото платы для проверки на дефекты."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Обрабатываю изображение..."
	msgNoDefects       = "✅ Дефекты не обнаружены."
	msgProcessingError = "⚠️ Не удалось обработать изображение. Попробуйте сделать другое фото."
	msgBusy            = "⏳ Сессия занята: идёт запуск, включена камера или загружен пакет на пульте."
	msgRunStarted      = "▶️ Запуск начат."
	msgPaused          = "⏸ Пауза."
	msgResumed         = "▶️ Продолжаю."
	msgStopped         = "⏹ Запуск остановлен."
	msgLiveStarted     = "🎥 Камера включена, живой режим запущен."
	msgSubscribed      = "🔔 Уведомления сессии включены."
	msgUnsubscribed    = "🔕 Уведомления сессии выключены."
	msgNotAllowed      = "⚠️ Команда недоступна в текущем состоянии сессии."
	msgNoAssets        = "📂 Нет загруженных изображений."
	msgSuperseded      = "⚠️ Сессия изменилась во время проверки, результат отброшен."
	msgSettingsUsage   = "⚙️ Использование: /settings <iou> <conf> [модель]"
	msgSettingsSaved   = "⚙️ Пороги обновлены: %s"
	msgExported        = "💾 Результаты сохранены в %s (изображений: %d, файлов JSON: %d)"
)

// API часть tgbotapi.BotAPI, которой пользуется бот
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot представляет Telegram-консоль оператора и рассылку уведомлений сессии
type Bot struct {
	api        API
	updates    *tgbotapi.BotAPI
	operators  *app.OperatorService
	inspection *app.InspectionService
	session    *app.DetectionSession
	http       *http.Client
	log        *logrus.Entry

	outbox chan entity.Event

	mu     sync.Mutex
	status *entity.SystemStatus
}

var _ port.EventSink = (*Bot)(nil)

// NewBot авторизуется в Telegram и создаёт бота
func NewBot(token string, operators *app.OperatorService, inspection *app.InspectionService, session *app.DetectionSession, log *logrus.Entry) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newBot(api, operators, inspection, session, log)
	b.updates = api
	b.log.Infof("Authorized on account %s", api.Self.UserName)
	return b, nil
}

func newBot(api API, operators *app.OperatorService, inspection *app.InspectionService, session *app.DetectionSession, log *logrus.Entry) *Bot {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bot{
		api:        api,
		operators:  operators,
		inspection: inspection,
		session:    session,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log.WithField("component", "telegram"),
		outbox:     make(chan entity.Event, 64),
	}
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	if b.updates == nil {
		return errors.New("telegram api is not initialised")
	}

	go b.dispatch(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.updates.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// Publish ставит уведомление в очередь рассылки. Очередь не блокирует сессию.
func (b *Bot) Publish(event entity.Event) {
	switch event.Kind {
	case entity.EventSystemStatus:
		b.mu.Lock()
		b.status = event.Status
		b.mu.Unlock()
	case entity.EventNotification:
		select {
		case b.outbox <- event:
		default:
			b.log.Debugf("notification dropped: %s", event.Message)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.outbox:
			b.deliver(ctx, event)
		}
	}
}

// deliver отправляет уведомление всем подписанным чатам
func (b *Bot) deliver(ctx context.Context, event entity.Event) {
	chats, err := b.operators.Subscribers(ctx)
	if err != nil {
		b.log.WithError(err).Warn("Error listing subscribers")
		return
	}
	text := FormatNotification(event)
	for _, chatID := range chats {
		b.sendMessage(chatID, text)
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if _, err := b.operators.Get(ctx, msg.From.ID, msg.Chat.ID); err != nil {
		b.log.WithError(err).Error("Error getting operator")
		return
	}

	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	// Обработка фото
	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendPhoto)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID, chatID := msg.From.ID, msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.setState(ctx, userID, chatID, entity.StateMainMenu)
		b.sendMessage(chatID, msgStart)

	case "help":
		b.sendMessage(chatID, msgHelp)

	case "check":
		if b.inspection.Busy() {
			b.sendMessage(chatID, msgBusy)
			return
		}
		b.setState(ctx, userID, chatID, entity.StateAwaitingPhoto)
		b.sendMessage(chatID, msgAwaitingPhoto)

	case "cancel":
		b.setState(ctx, userID, chatID, entity.StateMainMenu)
		b.sendMessage(chatID, msgCancelled)

	case "run":
		b.reply(chatID, b.session.Start(), msgRunStarted)

	case "live":
		if err := b.session.OpenCamera(ctx); err != nil {
			b.sendMessage(chatID, errorText(err))
			return
		}
		b.reply(chatID, b.session.Start(), msgLiveStarted)

	case "pause":
		paused, err := b.session.TogglePause()
		if paused {
			b.reply(chatID, err, msgPaused)
		} else {
			b.reply(chatID, err, msgResumed)
		}

	case "stop":
		b.reply(chatID, b.session.Stop(), msgStopped)

	case "status":
		b.sendMessage(chatID, FormatSnapshot(b.session.Snapshot(), b.systemStatus()))

	case "settings":
		b.handleSettings(chatID, msg.CommandArguments())

	case "export":
		report, err := b.inspection.Export()
		if err != nil {
			b.sendMessage(chatID, errorText(err))
			return
		}
		b.sendMessage(chatID, fmt.Sprintf(msgExported, report.Dir, len(report.Images), len(report.Documents)))

	case "subscribe", "unsubscribe":
		on := msg.Command() == "subscribe"
		if _, err := b.operators.Subscribe(ctx, userID, chatID, on); err != nil {
			b.log.WithError(err).Error("Error saving subscription")
			return
		}
		if on {
			b.sendMessage(chatID, msgSubscribed)
		} else {
			b.sendMessage(chatID, msgUnsubscribed)
		}

	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

func (b *Bot) handleSettings(chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 || len(fields) > 3 {
		b.sendMessage(chatID, msgSettingsUsage)
		return
	}
	iou, errIoU := strconv.ParseFloat(fields[0], 64)
	conf, errConf := strconv.ParseFloat(fields[1], 64)
	if errIoU != nil || errConf != nil {
		b.sendMessage(chatID, msgSettingsUsage)
		return
	}

	t := b.session.Thresholds()
	t.IoU, t.Confidence = iou, conf
	if len(fields) == 3 {
		t.Model = entity.ModelPreset(fields[2])
	}
	if err := b.session.SetThresholds(t); err != nil {
		b.sendMessage(chatID, "⚠️ "+err.Error())
		return
	}
	b.sendMessage(chatID, fmt.Sprintf(msgSettingsSaved, formatThresholds(b.session.Thresholds())))
}

// handlePhoto обрабатывает входящее фото
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	b.sendMessage(chatID, msgProcessing)

	// Получаем файл с максимальным разрешением
	photo := msg.Photo[len(msg.Photo)-1]

	imageData, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		b.log.WithError(err).Error("Error downloading photo")
		b.sendMessage(chatID, msgProcessingError)
		b.setState(ctx, msg.From.ID, chatID, entity.StateMainMenu)
		return
	}

	out, err := b.inspection.ProcessPhoto(ctx, msg.From.ID, chatID, photo.FileUniqueID+".jpg", imageData)
	switch {
	case errors.Is(err, app.ErrSessionBusy):
		b.sendMessage(chatID, msgBusy)
		return
	case err != nil:
		b.log.WithError(err).Warn("Inspection failed")
		b.sendMessage(chatID, msgProcessingError)
		return
	}

	text := FormatResult(out.Result)
	if len(out.Highlighted) == 0 {
		b.sendMessage(chatID, text)
		return
	}

	upload := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "defects.png", Bytes: out.Highlighted})
	upload.Caption = text
	if _, err := b.api.Send(upload); err != nil {
		b.log.WithError(err).Error("Error sending photo")
		b.sendMessage(chatID, text)
	}
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

func (b *Bot) setState(ctx context.Context, userID, chatID int64, state entity.OperatorState) {
	if _, err := b.operators.SetState(ctx, userID, chatID, state); err != nil {
		b.log.WithError(err).Error("Error saving operator state")
	}
}

func (b *Bot) systemStatus() *entity.SystemStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// reply отправляет ok при успехе и описание ошибки иначе
func (b *Bot) reply(chatID int64, err error, ok string) {
	if err != nil {
		b.sendMessage(chatID, errorText(err))
		return
	}
	b.sendMessage(chatID, ok)
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).Error("Error sending message")
	}
}
