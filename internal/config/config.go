package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Commission CommissionConfig `mapstructure:"commission"`
	Business   BusinessConfig   `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	RechargeResult   string `mapstructure:"recharge_result"`
	SettlementResult string `mapstructure:"settlement_result"`
}

// CommissionConfig 返佣比例配置
// 三档比例各自独立配置；引擎侧会把低档比例向高档收敛（低档不允许超过高档）
type CommissionConfig struct {
	Level1Rate       float64 `mapstructure:"level1_rate"`
	Level2Rate       float64 `mapstructure:"level2_rate"`
	Level3Rate       float64 `mapstructure:"level3_rate"`
	MaxHierarchyHops int     `mapstructure:"max_hierarchy_hops"` // 向上遍历跳数上限，防环
}

type BusinessConfig struct {
	MaxRetryCount int `mapstructure:"max_retry_count"` // 发件箱消息最大重试次数
	SmsQueueSize  int `mapstructure:"sms_queue_size"`  // 短信发送队列容量
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if config.Commission.MaxHierarchyHops <= 0 {
		config.Commission.MaxHierarchyHops = 20
	}
	if config.Business.SmsQueueSize <= 0 {
		config.Business.SmsQueueSize = 1024
	}

	GlobalConfig = config
	return config
}
