package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lqiu/newsbridge/internal/config"
	"github.com/lqiu/newsbridge/internal/llm"
	"github.com/lqiu/newsbridge/internal/model"
)

// Localizer turns the English summary into a publishable simplified
// Chinese report through four ordered model calls: title, literal
// translation, formal news restyle, final refinement. Each step retries
// once on empty or malformed output; if any step ultimately fails the
// whole report is discarded rather than surfacing a half-localized
// item.
type Localizer struct {
	ai             *aiClient
	model          string
	wellKnownNames []string
	log            *slog.Logger
}

// NewLocalizer builds a localizer from the job configuration.
func NewLocalizer(log *slog.Logger, ai *aiClient, llmCfg config.LLMConfig, wellKnownNames []string) *Localizer {
	return &Localizer{
		ai:             ai,
		model:          llmCfg.WriteModel,
		wellKnownNames: wellKnownNames,
		log:            log,
	}
}

// Localize produces the Chinese report for one summarized article.
func (l *Localizer) Localize(ctx context.Context, inst config.InstitutionProfile, record *model.NewsItemRecord) (*model.ChineseReport, error) {
	summary := record.Summary.Text

	title, err := l.step(ctx, "localize-title", l.titlePrompt(inst, summary))
	if err != nil {
		return nil, err
	}
	title = strings.TrimPrefix(strings.TrimSpace(title), "Chinese Title:")
	title = strings.TrimSpace(title)

	translation, err := l.step(ctx, "localize-translate", l.translationPrompt(inst, summary))
	if err != nil {
		return nil, err
	}

	restyled, err := l.step(ctx, "localize-restyle", l.restylePrompt(inst, record, translation))
	if err != nil {
		return nil, err
	}

	refined, err := l.step(ctx, "localize-refine", l.refinePrompt(restyled))
	if err != nil {
		return nil, err
	}

	l.log.Debug("report localized", "url", record.Candidate.URL, "title", title)
	return &model.ChineseReport{
		Title:              title,
		InitialTranslation: translation,
		RefinedText:        refined,
	}, nil
}

// step runs one sub-step with a single stricter retry on schema
// failures. Service failures bubble up with their retry budget already
// spent inside the client.
func (l *Localizer) step(ctx context.Context, stage, prompt string) (string, error) {
	req := llm.Request{
		System:      "你是一位专业的中文新闻写作者，专门为中国留学生撰写准确、精炼的新闻。",
		Prompt:      prompt,
		Model:       l.model,
		Temperature: 0.7,
	}

	text, err := l.ai.complete(ctx, stage, req)
	if err == nil {
		return text, nil
	}
	if model.KindOf(err) != model.ErrSchema {
		return "", err
	}

	l.log.Warn("localization step returned no usable text, retrying", "stage", stage, "error", err)
	req.Prompt = prompt + "\n\n你上一次的回复无法使用。请直接输出要求的中文内容，不要添加任何解释或标记。"
	return l.ai.complete(ctx, stage, req)
}

func (l *Localizer) titlePrompt(inst config.InstitutionProfile, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "为以下英文新闻摘要创建一个简体中文新闻标题。读者是%s。\n\n", inst.AudienceZH)
	b.WriteString("要求：\n")
	b.WriteString("- 标题简洁、切题、吸引人\n")
	b.WriteString("- 如果单行标题超过15个中文字符，分成2个逗号分隔的段落，每段不超过12个字符，在自然语义断点处分割\n")
	b.WriteString("- 每个段落必须是完整的短语（主谓或动宾），不能是孤立的名词\n")
	b.WriteString("- 避免隐喻、成语、双关语和过于文学化的措辞，使用直接、自然的用词\n")
	b.WriteString("- 避免单字缩写（例如不要用\"美\"代指\"全美\"）\n")
	b.WriteString("- 只输出标题本身，不要任何前缀或解释\n\n")
	fmt.Fprintf(&b, "英文摘要：\n'''\n%s\n'''\n", summary)
	return b.String()
}

func (l *Localizer) translationPrompt(inst config.InstitutionProfile, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "将以下英文新闻摘要完整翻译成简体中文。读者是%s。\n\n", inst.AudienceZH)
	b.WriteString("要求：\n")
	b.WriteString("- 仅翻译摘要中明确陈述的信息，不要添加、推断或猜测\n")
	b.WriteString("- 保留所有事实细节：日期、姓名、数字、地点、组织\n")
	b.WriteString(l.nameRule())
	b.WriteString("- 只输出译文，不要任何解释\n\n")
	fmt.Fprintf(&b, "英文摘要：\n'''\n%s\n'''\n", summary)
	return b.String()
}

func (l *Localizer) restylePrompt(inst config.InstitutionProfile, record *model.NewsItemRecord, translation string) string {
	date := "日期不详"
	if v := record.Verification; v != nil && v.PublicationDate != nil {
		date = v.PublicationDate.Format("2006-01-02")
	}

	var b strings.Builder
	b.WriteString("将以下中文译文改写成严肃、正式、客观的新闻报道。\n\n")
	b.WriteString("要求：\n")
	fmt.Fprintf(&b, "- 开头注明消息来源和时间：消息来自%s，发布日期%s\n", inst.Name, date)
	b.WriteString("- 使用短句和准确的词汇，避免复杂的长句\n")
	b.WriteString("- 保持语言自然专业，尽量减少形容词\n")
	b.WriteString("- 不要包含评论或观点，不要写总结性结论\n")
	b.WriteString("- 只输出改写后的正文\n\n")
	fmt.Fprintf(&b, "中文译文：\n'''\n%s\n'''\n", translation)
	return b.String()
}

func (l *Localizer) refinePrompt(restyled string) string {
	var b strings.Builder
	b.WriteString("对以下中文新闻报道做最后一轮精炼。\n\n")
	b.WriteString("要求：\n")
	b.WriteString("- 每个关键事实点至少2句话：第一句核心事实，第二句背景、细节或影响\n")
	b.WriteString("- 相似或相关的事实合并为一个段落\n")
	b.WriteString("- 每个段落80-250个中文字符，总长度250-500个中文字符\n")
	b.WriteString("- 删除对核心新闻没有事实价值的句子\n")
	b.WriteString("- 确保最后一句切题且有价值\n")
	b.WriteString("- 只输出精炼后的正文\n\n")
	fmt.Fprintf(&b, "新闻报道：\n'''\n%s\n'''\n", restyled)
	return b.String()
}

// nameRule renders the proper-name formatting instruction, exempting
// the configured well-known names from the parenthetical requirement.
func (l *Localizer) nameRule() string {
	rule := "- 对于不太常见的英文人名、组织名或项目名，翻译成中文并在括号中保留英文：中文名 (English Name)\n"
	if len(l.wellKnownNames) > 0 {
		rule += fmt.Sprintf("- 以下知名名称直接使用中文译名，不加英文括号：%s\n", strings.Join(l.wellKnownNames, "、"))
	}
	return rule
}
