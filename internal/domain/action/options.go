package action

import "github.com/okian/mafiabot/pkg/logger"

// Option applies a configuration option to the Parser.
type Option func(*Parser)

// WithLogger sets the logger used for unknown and malformed commands.
func WithLogger(l logger.Logger) Option {
	return func(p *Parser) {
		p.logger = l
	}
}
