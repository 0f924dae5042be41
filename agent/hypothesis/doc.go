// Package hypothesis 提供假设精炼三件套：refiner、analyzer、reviser，
// 以及串联三者的 hypothesis_refinement 工作流。
//
// 三个 agent 均通过 Caller 调用 LLM；输入为类型化模型时返回类型化模型，
// 输入为字符串时返回字符串。
package hypothesis
