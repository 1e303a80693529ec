// internal/services/voiceover_service.go
package services

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/utils"
)

const (
	defaultSpeechRate  = 1.0
	defaultSpeechPitch = 0.0
)

// Speaker 语音合成能力。Speak 阻塞到这一句读完。
type Speaker interface {
	Speak(ctx context.Context, text string, rate, pitch float64) error
	Stop()
}

// LogSpeaker 只记录日志的 Speaker，服务端没有音频设备时使用
type LogSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	stopped bool
	logger  *utils.Logger
}

func NewLogSpeaker() *LogSpeaker {
	return &LogSpeaker{logger: utils.GetLogger()}
}

func (s *LogSpeaker) Speak(ctx context.Context, text string, rate, pitch float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.stopped = false
	s.mu.Unlock()

	s.logger.Info("🔊 朗读", map[string]interface{}{
		"text":  text,
		"rate":  rate,
		"pitch": pitch,
	})
	return nil
}

func (s *LogSpeaker) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Spoken 已朗读的句子
func (s *LogSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// VoiceOverService 配音指导的生成与试听
type VoiceOverService struct {
	backend Backend
	speaker Speaker
	logger  *utils.Logger
}

func NewVoiceOverService(backend Backend, speaker Speaker) *VoiceOverService {
	if speaker == nil {
		speaker = NewLogSpeaker()
	}
	return &VoiceOverService{
		backend: backend,
		speaker: speaker,
		logger:  utils.GetLogger(),
	}
}

func (s *VoiceOverService) Directions(ctx context.Context, script *models.Script, lang models.Language) (*models.VoiceOverDirections, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	return s.backend.GenerateVoiceOverDirections(ctx, script, lang)
}

// Preview 逐句朗读。未给出语速/音调时使用 1 和 0；ctx 取消时停止朗读。
func (s *VoiceOverService) Preview(ctx context.Context, directions *models.VoiceOverDirections) error {
	if directions == nil || len(directions.Lines) == 0 {
		return apperrors.NewValidationError("没有可以朗读的台词", nil)
	}

	stop := context.AfterFunc(ctx, s.speaker.Stop)
	defer stop()

	for i, line := range directions.Lines {
		if line.Dialogue == "" {
			continue
		}
		rate, pitch := defaultSpeechRate, defaultSpeechPitch
		if line.Rate != nil {
			rate = *line.Rate
		}
		if line.Pitch != nil {
			pitch = *line.Pitch
		}
		if err := s.speaker.Speak(ctx, line.Dialogue, rate, pitch); err != nil {
			return fmt.Errorf("朗读第 %d 句失败: %w", i+1, err)
		}
	}
	return nil
}

// Stop 立即停止当前朗读
func (s *VoiceOverService) Stop() {
	s.speaker.Stop()
}
