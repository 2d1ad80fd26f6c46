package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	analysis "github.com/zhouzirui/emopulse/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/config"
	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
	"github.com/zhouzirui/emopulse/backend/internal/service/classifier"
	"github.com/zhouzirui/emopulse/backend/internal/service/orchestrator"
)

// report 是一次本地测试的输出。
type report struct {
	RunID         string         `json:"run_id"`
	Text          string         `json:"text,omitempty"`
	Transcript    string         `json:"transcript,omitempty"`
	TextSentiment emotion.Signal `json:"text_sentiment"`
	FaceEmotion   emotion.Label  `json:"face_emotion,omitempty"`
	VoiceEmotion  emotion.Label  `json:"voice_emotion,omitempty"`
	Dominant      emotion.Label  `json:"dominant_emotion,omitempty"`
	Rule          analysis.Rule  `json:"fusion_rule"`
	Masking       bool           `json:"masking"`
	Errors        []string       `json:"errors,omitempty"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("无法加载 .env，改用系统环境变量")
	}

	text := flag.String("text", "", "待分析文本")
	facePath := flag.String("face", "", "人脸图片路径")
	voicePath := flag.String("voice", "", "语音文件路径")
	useLLM := flag.Bool("llm", false, "使用大模型做文本情绪分类 (需要 Ark 凭证)")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")
	flag.Parse()

	if strings.TrimSpace(*text) == "" && *facePath == "" && *voicePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("配置加载失败")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var chatModel model.BaseChatModel
	if *useLLM && cfg.AI.Enabled() {
		cfg.AI.EmotionLLMEnabled = true
		if chatModel, err = cfg.AI.NewChatModel(ctx); err != nil {
			log.WithError(err).Fatal("创建聊天模型失败")
		}
	}

	classifiers, err := orchestrator.ClassifiersFromConfig(ctx, cfg, chatModel, log)
	if err != nil {
		log.WithError(err).Fatal("初始化分类器失败")
	}

	out := report{RunID: uuid.NewString(), Text: strings.TrimSpace(*text)}
	fail := func(modality string, err error) {
		log.WithError(err).WithField("modality", modality).Warn("classification failed")
		out.Errors = append(out.Errors, err.Error())
	}

	if *facePath != "" {
		if classifiers.Face == nil {
			fail(classifier.ModalityFace, orchestrator.ErrClassifierUnavailable)
		} else if label, err := classifiers.Face.ClassifyFace(ctx, mustRead(log, *facePath)); err != nil {
			fail(classifier.ModalityFace, err)
		} else {
			out.FaceEmotion = label
		}
	}

	if *voicePath != "" {
		audio := mustRead(log, *voicePath)
		if classifiers.Voice == nil {
			fail(classifier.ModalityVoice, orchestrator.ErrClassifierUnavailable)
		} else if label, err := classifiers.Voice.ClassifyVoice(ctx, audio); err != nil {
			fail(classifier.ModalityVoice, err)
		} else {
			out.VoiceEmotion = label
		}

		if classifiers.Transcriber != nil {
			if transcript, err := classifiers.Transcriber.Transcribe(ctx, audio); err != nil {
				fail(classifier.ModalityASR, err)
			} else {
				out.Transcript = transcript
			}
		}
	}

	utterance := out.Text
	if utterance == "" {
		utterance = out.Transcript
	}
	if utterance != "" {
		if signal, err := classifiers.Text.ClassifyText(ctx, utterance); err != nil {
			fail(classifier.ModalityText, err)
		} else {
			out.TextSentiment = signal
		}
	}

	fusion := analysis.Fuse(emotion.ModalitySignals{
		Text:  out.TextSentiment.Label,
		Voice: out.VoiceEmotion,
		Face:  out.FaceEmotion,
	})
	out.Dominant, out.Rule = fusion.Dominant, fusion.Rule
	out.Masking = analysis.DetectMasking(out.VoiceEmotion, out.FaceEmotion)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.WithError(err).Fatal("写出结果失败")
	}
}

func mustRead(log logrus.FieldLogger, path string) classifier.Media {
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Fatal("读取文件失败")
	}
	return classifier.Media{Filename: filepath.Base(path), Data: data}
}
