// Package config 提供 Lian 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加。逻辑库在 YAML 中以
// 映射声明并保持声明顺序，未指定默认库时取名为 "default" 的逻辑库，
// 否则取第一个。逻辑库字段可通过 LIAN_DB_<NAME>_<FIELD> 覆盖。
package config
